package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/raftstore/rpc/common"
)

// NewJSONSerializer creates a serializer that writes messages as JSON.
// Message types are written by name, so the output is readable in traces.
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// decode into a fresh message, fields missing in b must not survive from an earlier use of msg
	var decoded common.Message
	if err := json.Unmarshal(b, &decoded); err != nil {
		return malformed("json", err)
	}
	*msg = decoded
	return nil
}
