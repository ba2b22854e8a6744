package codec_test

import (
	"encoding/json"
	"errors"
	"math"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohans/taskx/codec"
)

type holder struct {
	Value string
}

func (h holder) String() string { return h.Value }

func newCodec(t *testing.T) *codec.Codec {
	t.Helper()
	c := codec.New()
	err := codec.Register(c, "test.holder",
		func(h holder) (string, error) { return h.Value, nil },
		func(s string) (holder, error) { return holder{Value: s}, nil },
	)
	require.NoError(t, err)
	return c
}

func TestRoundTrip(t *testing.T) {
	c := newCodec(t)

	maxTime := time.Date(9999, 12, 31, 23, 59, 59, 999999900, time.UTC)
	now := time.Now()

	values := []any{
		nil,
		int(1),
		int8(-8),
		int16(1 << 14),
		int32(math.MinInt32),
		int64(math.MaxInt64),
		uint(7),
		uint8(255),
		uint16(65535),
		uint32(1 << 31),
		uint64(math.MaxUint64),
		"theboss",
		"",
		"unicode ✓ and \"quotes\"",
		true,
		false,
		float32(1.1),
		3.141592653589793,
		math.Inf(-1),
		holder{Value: "thebossss"},
	}

	for _, v := range values {
		enc, err := c.Encode(v)
		require.NoError(t, err, "encode %#v", v)

		// Force the value through its wire form too.
		raw, err := json.Marshal(enc)
		require.NoError(t, err)
		var wire codec.Value
		require.NoError(t, json.Unmarshal(raw, &wire))

		dec, err := c.Decode(wire)
		require.NoError(t, err, "decode %s", wire)
		assert.Equal(t, v, dec, "round trip of %#v", v)
	}

	t.Run("times", func(t *testing.T) {
		for _, tm := range []time.Time{now, now.UTC(), maxTime, time.Date(2001, 2, 3, 4, 5, 6, 7, time.FixedZone("X", -3*3600))} {
			enc, err := c.Encode(tm)
			require.NoError(t, err)
			assert.Equal(t, codec.TagDateTime, enc.Tag)

			dec, err := c.Decode(enc)
			require.NoError(t, err)
			got, ok := dec.(time.Time)
			require.True(t, ok, "decoded %T", dec)
			assert.True(t, tm.Equal(got), "want %v got %v", tm, got)
		}
	})

	t.Run("nullable time with value", func(t *testing.T) {
		tm := maxTime
		enc, err := c.Encode(&tm)
		require.NoError(t, err)
		assert.Equal(t, codec.TagNullableDateTime, enc.Tag)

		dec, err := c.Decode(enc)
		require.NoError(t, err)
		got, ok := dec.(*time.Time)
		require.True(t, ok)
		require.NotNil(t, got)
		assert.True(t, tm.Equal(*got))
	})

	t.Run("nullable time without value", func(t *testing.T) {
		enc, err := c.Encode((*time.Time)(nil))
		require.NoError(t, err)
		assert.Equal(t, codec.TagNullableDateTime, enc.Tag)
		assert.NotEqual(t, codec.TagNull, enc.Tag)

		dec, err := c.Decode(enc)
		require.NoError(t, err)
		got, ok := dec.(*time.Time)
		require.True(t, ok, "want a typed nil *time.Time, got %T", dec)
		assert.Nil(t, got)
	})

	t.Run("nullable primitives", func(t *testing.T) {
		n, b, str := 5, true, "theboss"
		for _, tc := range []struct {
			in   any
			want any
		}{
			{&n, 5},
			{&b, true},
			{&str, "theboss"},
			{(*int)(nil), nil},
			{(*bool)(nil), nil},
			{(*string)(nil), nil},
		} {
			enc, err := c.Encode(tc.in)
			require.NoError(t, err, "encode %T", tc.in)

			dec, err := c.Decode(enc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, dec, "round trip of %T", tc.in)
		}
	})

	t.Run("nan", func(t *testing.T) {
		enc, err := c.Encode(math.NaN())
		require.NoError(t, err)
		dec, err := c.Decode(enc)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(dec.(float64)))
	})
}

func TestEncodeTimeOutOfRange(t *testing.T) {
	c := codec.New()

	for _, tm := range []time.Time{
		time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(-1, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		_, err := c.Encode(tm)
		require.ErrorIs(t, err, codec.ErrUnsupportedType, "%v", tm)

		var tre *codec.TimeRangeError
		assert.True(t, errors.As(err, &tre))

		_, err = c.Encode(&tm)
		require.ErrorIs(t, err, codec.ErrUnsupportedType, "%v", tm)
	}

	_, err := c.Encode(time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC))
	assert.NoError(t, err)
	_, err = c.Encode(time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
}

func TestDecodeNullIgnoresPayload(t *testing.T) {
	c := codec.New()
	dec, err := c.Decode(codec.Value{Tag: codec.TagNull, Kind: "int", Payload: "garbage"})
	require.NoError(t, err)
	assert.Nil(t, dec)
}

func TestEncodeUnsupported(t *testing.T) {
	c := codec.New()

	type celsius float64
	for _, v := range []any{
		struct{ A int }{1},
		[]byte("x"),
		map[string]int{},
		celsius(3),
		holder{Value: "unregistered"},
		func() {},
	} {
		_, err := c.Encode(v)
		require.Error(t, err, "%T", v)
		assert.True(t, errors.Is(err, codec.ErrUnsupportedType), "%T: %v", v, err)

		var ute *codec.UnsupportedTypeError
		assert.True(t, errors.As(err, &ute))
	}

	// Typed nil pointers carry no information beyond null.
	enc, err := c.Encode((*holder)(nil))
	require.NoError(t, err)
	assert.Equal(t, codec.TagNull, enc.Tag)
}

func TestDecodeCorrupt(t *testing.T) {
	c := newCodec(t)

	cases := map[string]codec.Value{
		"integer text":      {Tag: codec.TagInteger, Payload: "abc"},
		"integer overflow":  {Tag: codec.TagInteger, Kind: "int8", Payload: "300"},
		"negative unsigned": {Tag: codec.TagInteger, Kind: "uint", Payload: "-1"},
		"integer kind":      {Tag: codec.TagInteger, Kind: "int128", Payload: "1"},
		"float text":        {Tag: codec.TagFloating, Payload: "one"},
		"float kind":        {Tag: codec.TagFloating, Kind: "float16", Payload: "1"},
		"boolean":           {Tag: codec.TagBoolean, Payload: "yes"},
		"datetime":          {Tag: codec.TagDateTime, Payload: "yesterday"},
		"empty datetime":    {Tag: codec.TagDateTime},
		"nullable datetime": {Tag: codec.TagNullableDateTime, Payload: "2020-13-45"},
		"object name":       {Tag: codec.TagObject, Payload: "x"},
		"unknown tag":       {Tag: codec.Tag("blob"), Payload: "x"},
	}

	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode(v)
			require.Error(t, err)
			assert.True(t, errors.Is(err, codec.ErrCorruptEncoding), "%v", err)
		})
	}
}

func TestDecodeUnknownObjectYieldsOpaque(t *testing.T) {
	producer := newCodec(t)
	consumer := codec.New()

	enc, err := producer.Encode(holder{Value: "thebossss"})
	require.NoError(t, err)
	assert.Equal(t, codec.TagObject, enc.Tag)
	assert.Equal(t, "test.holder", enc.Kind)

	dec, err := consumer.Decode(enc)
	require.NoError(t, err)

	op, ok := dec.(codec.Opaque)
	require.True(t, ok, "got %T", dec)
	assert.Equal(t, "test.holder", op.TypeName)
	assert.Equal(t, "thebossss", op.String())
}

func TestObjectParseFailure(t *testing.T) {
	c := codec.New()
	require.NoError(t, codec.Register(c, "strict",
		func(h holder) (string, error) { return h.Value, nil },
		func(s string) (holder, error) {
			if strings.TrimSpace(s) == "" {
				return holder{}, errors.New("empty")
			}
			return holder{Value: s}, nil
		},
	))

	_, err := c.Decode(codec.Value{Tag: codec.TagObject, Kind: "strict", Payload: " "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrCorruptEncoding))
}

func TestRegister(t *testing.T) {
	c := codec.New()

	require.NoError(t, codec.RegisterText[netip.Addr](c, "netip.Addr"))

	addr := netip.MustParseAddr("10.1.2.3")
	enc, err := c.Encode(addr)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", enc.Payload)

	dec, err := c.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, addr, dec)

	t.Run("duplicate name", func(t *testing.T) {
		err := codec.Register(c, "netip.Addr",
			func(h holder) (string, error) { return h.Value, nil }, nil)
		assert.Error(t, err)
	})

	t.Run("duplicate type", func(t *testing.T) {
		err := codec.RegisterText[netip.Addr](c, "other")
		assert.Error(t, err)
	})

	t.Run("missing name", func(t *testing.T) {
		err := codec.Register(c, "", func(h holder) (string, error) { return "", nil }, nil)
		assert.Error(t, err)
	})

	t.Run("format only", func(t *testing.T) {
		require.NoError(t, codec.Register(c, "holder.view", func(h holder) (string, error) { return h.Value, nil }, nil))
		enc, err := c.Encode(holder{Value: "v"})
		require.NoError(t, err)
		dec, err := c.Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, codec.Opaque{TypeName: "holder.view", Text: "v"}, dec)
	})
}

func TestEncodeAllReportsPosition(t *testing.T) {
	c := codec.New()

	_, err := c.EncodeAll([]any{1, "x", struct{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 2")

	vals, err := c.EncodeAll([]any{1, "x", nil})
	require.NoError(t, err)
	require.Len(t, vals, 3)

	out, err := c.DecodeAll(vals)
	require.NoError(t, err)
	assert.Equal(t, []any{1, "x", nil}, out)
}

func TestValueRejectsUnknownTagOnUnmarshal(t *testing.T) {
	var v codec.Value
	err := json.Unmarshal([]byte(`{"t":"blob","p":"x"}`), &v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrCorruptEncoding))
}
