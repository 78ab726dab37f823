package calculator

import (
	"strings"
)

// DefaultRegion is used when no gazetteer entry matches the route name
const DefaultRegion = "Allgäu Alps"

// regionGazetteer is checked in order; the first entry with a matching
// keyword wins
var regionGazetteer = []struct {
	region   string
	keywords []string
}{
	{region: "Allgäu Alps West", keywords: []string{"kleinwalsertal", "fellhorn"}},
	{region: "Allgäu Alps Central", keywords: []string{"oberstdorf", "nebelhorn"}},
}

// InferRegion classifies a route by case-insensitive keyword matches on its
// display name
func InferRegion(name string) string {
	lower := strings.ToLower(name)
	for _, entry := range regionGazetteer {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.region
			}
		}
	}
	return DefaultRegion
}
