package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/itsatony/emhub/internal/models"
)

// fieldAlias is one accepted payload key for a canonical field. Index >= 0
// means the key holds an array and the value sits at that position.
type fieldAlias struct {
	Key   string
	Index int
}

func scalar(key string) fieldAlias { return fieldAlias{Key: key, Index: -1} }

// Ordered alias lists per canonical field. The first alias holding a valid
// number wins.
var (
	timeAliases        = []fieldAlias{scalar("time"), scalar("Time")}
	temperatureAliases = []fieldAlias{scalar("temperature"), scalar("Temperature")}
	humidityAliases    = []fieldAlias{scalar("humidity"), scalar("Humidity")}
	pressureAliases    = []fieldAlias{scalar("pressure"), scalar("Pressure")}
	gasAliases         = buildGasAliases()
	addressAliases     = []fieldAlias{scalar("address"), scalar("ip")}
)

func buildGasAliases() [models.GasChannels][]fieldAlias {
	var out [models.GasChannels][]fieldAlias
	for i := range out {
		n := i + 1
		out[i] = []fieldAlias{
			scalar(fmt.Sprintf("gas%d", n)),
			scalar(fmt.Sprintf("EtOH%d", n)),
			scalar(fmt.Sprintf("ADC%d", n)),
			{Key: "ADC_Value", Index: i},
			{Key: "gas", Index: i},
		}
	}
	return out
}

// lookup returns the raw value behind the first alias that is present.
func (a fieldAlias) lookup(payload map[string]any) (any, bool) {
	v, ok := payload[a.Key]
	if !ok || v == nil {
		return nil, false
	}
	if a.Index < 0 {
		return v, true
	}
	arr, ok := v.([]any)
	if !ok || a.Index >= len(arr) || arr[a.Index] == nil {
		return nil, false
	}
	return arr[a.Index], true
}

func resolveNumber(payload map[string]any, aliases []fieldAlias) *float64 {
	for _, a := range aliases {
		v, ok := a.lookup(payload)
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return &f
		}
	}
	return nil
}

func resolveString(payload map[string]any, aliases []fieldAlias) *string {
	for _, a := range aliases {
		v, ok := a.lookup(payload)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			s = strings.TrimSpace(s)
			return &s
		}
	}
	return nil
}

// toFloat accepts JSON numbers and numeric strings. Non-finite values are
// rejected since they cannot be re-encoded as JSON.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		p, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
