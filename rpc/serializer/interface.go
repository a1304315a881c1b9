package serializer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ValentinKolb/raftstore/rpc/common"
)

// IRPCSerializer converts messages to bytes and back
type IRPCSerializer interface {
	// Serialize encodes msg
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg. Errors caused by the input wrap ErrMalformed.
	Deserialize(b []byte, msg *common.Message) error
}

// ErrMalformed is wrapped by all errors caused by undecodable input
var ErrMalformed = errors.New("malformed message")

// constructors by configuration name
var serializers = map[string]func() IRPCSerializer{
	"binary": NewBinarySerializer,
	"json":   NewJSONSerializer,
	"gob":    NewGOBSerializer,
}

// ByName returns the serializer registered under name (binary, json, gob)
func ByName(name string) (IRPCSerializer, error) {
	newFn, ok := serializers[name]
	if !ok {
		return nil, fmt.Errorf("invalid serializer %s (expected one of %v)", name, Names())
	}
	return newFn(), nil
}

// Names returns the names accepted by ByName in sorted order
func Names() []string {
	names := make([]string, 0, len(serializers))
	for name := range serializers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// malformed wraps a decoding error into ErrMalformed
func malformed(format string, err error) error {
	return fmt.Errorf("%w: "+format+": %v", ErrMalformed, err)
}
