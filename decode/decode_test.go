package decode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

type legacyStub struct {
	gotRaw, gotKey []byte
}

func (l *legacyStub) ParseAdvertisement(raw, key []byte) (map[string]interface{}, error) {
	l.gotRaw, l.gotKey = raw, key
	return map[string]interface{}{
		"device_type": "SolarCharger",
		"values": map[string]interface{}{
			"battery_voltage":   13.27,
			"charge_state":      "3",
			"load_current":      int64(2),
			"model_name":        "SmartSolar",
			"external_device_n": nil,
		},
	}, nil
}

type keyedStub struct {
	gotIdentity string
}

func (k *keyedStub) Decode(identity string, _, _ []byte) (map[string]interface{}, error) {
	k.gotIdentity = identity
	return map[string]interface{}{"values": map[string]interface{}{"voltage": 12.5}}, nil
}

type brokenStub struct{}

func (brokenStub) ParseAdvertisement(_, _ []byte) (map[string]interface{}, error) {
	return nil, errors.New("bad key")
}

func TestAdaptLegacy(t *testing.T) {
	stub := &legacyStub{}
	dec, err := Adapt(stub)
	require.NoError(t, err)

	fields, err := dec.Decode("AA:BB:CC:DD:EE:FF", []byte{0x01}, []byte{0x10, 0x02})
	require.NoError(t, err)
	want := Fields{
		DeviceType: "SolarCharger",
		Values:     map[string]float64{"battery_voltage": 13.27, "charge_state": 3, "load_current": 2},
	}
	if diff := cmp.Diff(want, fields); "" != diff {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []byte{0x10, 0x02}, stub.gotRaw)
	assert.Equal(t, []byte{0x01}, stub.gotKey)
}

func TestAdaptKeyed(t *testing.T) {
	stub := &keyedStub{}
	dec, err := Adapt(stub)
	require.NoError(t, err)
	fields, err := dec.Decode("AA:BB:CC:DD:EE:FF", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", stub.gotIdentity)
	assert.Equal(t, "", fields.DeviceType)
	assert.Equal(t, map[string]float64{"voltage": 12.5}, fields.Values)
}

func TestAdaptRejectsUnknownShape(t *testing.T) {
	_, err := Adapt(struct{}{})
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestDecodeFailures(t *testing.T) {
	dec, err := Adapt(brokenStub{})
	require.NoError(t, err)
	_, err = dec.Decode("", nil, nil)
	assert.Error(t, err)

	dec, err = Adapt(JSONParser{})
	require.NoError(t, err)
	_, err = dec.Decode("", nil, []byte(`{"values":{}}`))
	assert.True(t, errors.Is(err, ErrNoValues))
	_, err = dec.Decode("", nil, []byte(`{"values":`))
	assert.Error(t, err)
}

func TestJSONParser(t *testing.T) {
	dec, err := Adapt(JSONParser{})
	require.NoError(t, err)
	fields, err := dec.Decode("", nil, []byte(`{"device_type":"SolarCharger","values":{"voltage":13.2,"current":1.0,"state":"bulk"}}`))
	require.NoError(t, err)
	assert.Equal(t, "SolarCharger", fields.DeviceType)
	assert.Equal(t, map[string]float64{"voltage": 13.2, "current": 1.0}, fields.Values)
}

func TestParseEnvelope(t *testing.T) {
	env, raw, err := ParseEnvelope([]byte(`{"mac":"aa:bb:cc:dd:ee:ff","rssi":-71,"data":"10020a"}`))
	require.NoError(t, err)
	assert.Equal(t, -71, env.RSSI)
	assert.Equal(t, []byte{0x10, 0x02, 0x0a}, raw)

	_, raw, err = ParseEnvelope([]byte(`{"mac":"aa:bb:cc:dd:ee:ff","payload":{"values":{"v":1}}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"values":{"v":1}}`, string(raw))

	for _, bad := range []string{`{`, `{"rssi":1,"data":"00"}`, `{"mac":"x","data":"zz"}`, `{"mac":"x"}`} {
		_, _, err := ParseEnvelope([]byte(bad))
		assert.Error(t, err, bad)
	}
}
