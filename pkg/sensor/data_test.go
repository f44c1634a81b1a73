package sensor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Reading{Humidity: 55, Temperature: 23.5, Smoke: 12})
	require.NoError(t, err)
	assert.Equal(t, `{"humidade":55,"temperatura":23.5,"fumaca":12}`, string(b))

	// whole numbers past 2^53 round to the nearest representable float64
	var r Reading
	require.NoError(t, json.Unmarshal([]byte(`{"fumaca": 9007199254740993}`), &r))
	assert.Equal(t, 9007199254740992.0, r.Smoke)
}
