package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/maxatome/go-testdeep/td"
	"github.com/stretchr/testify/assert"

	"github.com/fansqz/js-debugger/constants"
	e "github.com/fansqz/js-debugger/error"
)

func TestDecode_Response(t *testing.T) {
	data := []byte(`{"seq":12,"type":"response","request_seq":3,"command":"lookup","success":true,"running":false,
		"body":{"7":{"handle":7,"type":"object","className":"Object","properties":[{"name":"a","ref":8},{"name":1,"ref":9}]}},
		"refs":[{"handle":8,"type":"number","value":1},{"handle":9,"type":"string","value":"x"}]}`)
	msg, err := Decode(data)
	assert.Nil(t, err)
	resp, ok := msg.(*Response)
	assert.True(t, ok)
	assert.Equal(t, 3, resp.RequestSeq)
	assert.Equal(t, constants.Lookup, resp.Command)
	assert.True(t, resp.Success)
	assert.Len(t, resp.Refs, 2)
	assert.Equal(t, int64(8), resp.Refs[0].Ref)
	assert.Equal(t, "number", resp.Refs[0].Type)

	var body map[string]*RawHandle
	assert.Nil(t, resp.UnmarshalBody(&body))
	data7, err := body["7"].Data()
	assert.Nil(t, err)
	assert.Equal(t, "Object", data7.ClassName)
	assert.Len(t, data7.Properties, 2)
	assert.Equal(t, PropertyName("a"), data7.Properties[0].Name)
	assert.Equal(t, PropertyName("1"), data7.Properties[1].Name)
	assert.Equal(t, int64(9), data7.Properties[1].RefID())
}

func TestDecode_Event(t *testing.T) {
	data := []byte(`{"seq":1,"type":"event","event":"break","body":{"sourceLine":4,"sourceColumn":2,"breakpoints":[1,2],"script":{"id":10,"name":"a.js"}}}`)
	msg, err := Decode(data)
	assert.Nil(t, err)
	ev := msg.(*Event)
	assert.Equal(t, constants.BreakEvent, ev.Event)
	var body BreakEventBody
	assert.Nil(t, ev.UnmarshalBody(&body))
	td.Cmp(t, body, td.SStruct(BreakEventBody{
		SourceLine:   4,
		SourceColumn: 2,
		Breakpoints:  []int64{1, 2},
		Script:       &ScriptRef{ID: 10, Name: "a.js"},
	}, nil))
}

func TestDecode_ResponseWithoutType(t *testing.T) {
	msg, err := Decode([]byte(`{"seq":2,"request_seq":1,"command":"version","success":true,"body":{"V8Version":"3.14.5"}}`))
	assert.Nil(t, err)
	resp, ok := msg.(*Response)
	assert.True(t, ok)
	assert.Equal(t, 1, resp.RequestSeq)
	var body VersionBody
	assert.Nil(t, resp.UnmarshalBody(&body))
	assert.Equal(t, "3.14.5", body.V8Version)
}

func TestDecode_Malformed(t *testing.T) {
	var pe *e.ProtocolError
	_, err := Decode([]byte(`{"seq":1,`))
	assert.True(t, errors.As(err, &pe))
	_, err = Decode([]byte(`{"seq":1,"type":"unknown"}`))
	assert.True(t, errors.As(err, &pe))
	_, err = Decode([]byte(`{"seq":1,"type":"response","refs":[1,2]}`))
	assert.True(t, errors.As(err, &pe))
}

func TestRequest_RoundTrip(t *testing.T) {
	line := 4
	req := NewRequest(constants.SetBreakpoint, &SetBreakpointArguments{
		Type:    constants.ScriptNameBreakpoint,
		Target:  "a.js",
		Line:    &line,
		Enabled: true,
	})
	req.Seq = 5
	data, err := Encode(req)
	assert.Nil(t, err)
	assert.JSONEq(t, `{"seq":5,"type":"request","command":"setbreakpoint","arguments":{"type":"script","target":"a.js","line":4,"enabled":true}}`, string(data))

	msg, err := Decode(data)
	assert.Nil(t, err)
	decoded := msg.(*Request)
	var args SetBreakpointArguments
	assert.Nil(t, decoded.UnmarshalArguments(&args))
	assert.Equal(t, "a.js", args.Target)
	assert.Equal(t, 4, *args.Line)
}

func TestRawHandle_InlineValue(t *testing.T) {
	data := []byte(`{"name":"x","value":{"ref":5,"type":"string","value":"abc","length":10,"fromIndex":0,"toIndex":3}}`)
	var p PropertyObject
	assert.Nil(t, json.Unmarshal(data, &p))
	assert.Equal(t, int64(5), p.RefID())
	assert.True(t, p.Value.HasData())
	d, err := p.Value.Data()
	assert.Nil(t, err)
	assert.Equal(t, 10, *d.Length)
	assert.Equal(t, `"abc"`, string(d.Value))

	var bare PropertyObject
	assert.Nil(t, json.Unmarshal([]byte(`{"name":"y"}`), &bare))
	assert.Equal(t, NoRef, bare.RefID())
}

func TestPropertyName_Index(t *testing.T) {
	i, ok := PropertyName("12").Index()
	assert.True(t, ok)
	assert.Equal(t, 12, i)
	for _, name := range []PropertyName{"length", "-1", "01", "", "1.5"} {
		_, ok = name.Index()
		assert.False(t, ok, string(name))
	}
}
