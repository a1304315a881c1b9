package serializer

import (
	"bytes"
	"encoding/gob"

	"github.com/ValentinKolb/raftstore/rpc/common"
)

// NewGOBSerializer creates a serializer using Go's gob format.
// Every message carries its own type description, which makes gob the largest format on the wire.
func NewGOBSerializer() IRPCSerializer {
	return gobSerializerImpl{}
}

type gobSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	var decoded common.Message
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&decoded); err != nil {
		return malformed("gob", err)
	}
	*msg = decoded
	return nil
}
