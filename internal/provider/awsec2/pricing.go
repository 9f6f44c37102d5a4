package awsec2

import (
	"strconv"

	gojson "github.com/goccy/go-json"
)

// AWS Pricing API GetProducts returns each price list entry as an
// opaque JSON document string; the on-demand USD-per-hour rate is
// nested several levels deep inside it. This shape is fixed by AWS,
// not by runctl, so the ad-hoc map-based walk below (rather than a
// full struct) is the simplest way to pull one field out of a
// variable-shaped document. Uses goccy/go-json for the same faster
// decode this package already relies on elsewhere.
func parseOnDemandPrice(doc string) (float64, bool) {
	var parsed map[string]any
	if err := gojson.Unmarshal([]byte(doc), &parsed); err != nil {
		return 0, false
	}
	terms, ok := parsed["terms"].(map[string]any)
	if !ok {
		return 0, false
	}
	onDemand, ok := terms["OnDemand"].(map[string]any)
	if !ok {
		return 0, false
	}
	for _, offer := range onDemand {
		offerMap, ok := offer.(map[string]any)
		if !ok {
			continue
		}
		priceDims, ok := offerMap["priceDimensions"].(map[string]any)
		if !ok {
			continue
		}
		for _, dim := range priceDims {
			dimMap, ok := dim.(map[string]any)
			if !ok {
				continue
			}
			pricePerUnit, ok := dimMap["pricePerUnit"].(map[string]any)
			if !ok {
				continue
			}
			usd, ok := pricePerUnit["USD"].(string)
			if !ok {
				continue
			}
			f, err := strconv.ParseFloat(usd, 64)
			if err != nil {
				continue
			}
			return f, true
		}
	}
	return 0, false
}
