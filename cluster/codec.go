package cluster

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	cbor "github.com/fxamacker/cbor/v2"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	em, _ := cbor.CanonicalEncOptions().EncMode()
	dm, _ := (cbor.DecOptions{}).DecMode()
	cborEnc, cborDec = em, dm
}

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)

// Codec encodes request bodies exchanged between master and secondaries.
// Secondaries pick the codec from the request Content-Type, so a master can
// switch codecs without reconfiguring its secondaries.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, v any) error
}

type JSONCodec struct{}

func (JSONCodec) ContentType() string             { return contentTypeJSON }
func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// CBORCodec uses canonical encoding so equal payloads produce equal bytes.
type CBORCodec struct{}

func (CBORCodec) ContentType() string             { return contentTypeCBOR }
func (CBORCodec) Marshal(v any) ([]byte, error)   { return cborEnc.Marshal(v) }
func (CBORCodec) Unmarshal(b []byte, v any) error { return cborDec.Unmarshal(b, v) }

// CodecByName resolves the REPLICATION_CODEC setting. Empty means JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown replication codec %q", name)
	}
}

// codecForContentType picks the body codec for an inbound request. Anything
// that is not CBOR is decoded as JSON.
func codecForContentType(ct string) Codec {
	if ct == "" {
		return JSONCodec{}
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err == nil && mt == contentTypeCBOR {
		return CBORCodec{}
	}
	return JSONCodec{}
}
