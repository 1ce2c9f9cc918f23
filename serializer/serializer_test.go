package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgify/agingcache/core"
)

type profile struct {
	Name  string `json:"name" msgpack:"name"`
	Score int    `json:"score" msgpack:"score"`
}

func TestAgedValueCodecs(t *testing.T) {
	in := core.NewAgedValue(1700000000000, profile{Name: "kim", Score: 42})

	for _, name := range []string{"json", "msgpack", "gob"} {
		t.Run(name, func(t *testing.T) {
			codec, err := CodecByName[core.AgedValue[profile]](name)
			require.NoError(t, err)
			assert.Equal(t, name, codec.Name())

			data, err := codec.Encode(in)
			require.NoError(t, err)

			out, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestJSONEnvelopeShape(t *testing.T) {
	data, err := JSON[core.AgedValue[string]]().Encode(core.NewAgedValue(5, "v"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"age":5,"value":"v"}`, string(data))
}

func TestRawSerializer(t *testing.T) {
	codec := NewCodec[string](NewRaw())

	data, err := codec.Encode("hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	out, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = NewCodec[int](NewRaw()).Encode(1)
	assert.Error(t, err)
}

func TestUnknownSerializer(t *testing.T) {
	_, err := CodecByName[string]("xml")
	assert.Error(t, err)

	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
}

func TestDecodeErrorIsWrapped(t *testing.T) {
	_, err := JSON[core.AgedValue[string]]().Decode([]byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json deserialize error")
}

func TestKeyCodecs(t *testing.T) {
	type userID string

	sk := StringKeys[userID]()
	s, err := sk.EncodeKey("u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", s)
	k, err := sk.DecodeKey(s)
	require.NoError(t, err)
	assert.Equal(t, userID("u-1"), k)

	type compound struct {
		Tenant int
		ID     string
	}
	jk := JSONKeys[compound]()
	s, err = jk.EncodeKey(compound{Tenant: 7, ID: "x"})
	require.NoError(t, err)
	back, err := jk.DecodeKey(s)
	require.NoError(t, err)
	assert.Equal(t, compound{Tenant: 7, ID: "x"}, back)

	_, err = JSONKeys[int]().DecodeKey("abc")
	assert.Error(t, err)
}
