package domain

import "slices"

// Tags is the fixed genre vocabulary a ReadingEntry may carry.
var Tags = []string{
	"fantasy",
	"scifi",
	"romance",
	"ya",
	"horror",
	"nonfiction",
	"history",
	"mystery",
	"thriller",
	"cookbook",
	"science",
	"selfHelp",
	"travel",
	"photography",
	"business",
	"art",
	"education",
	"religion",
	"literature",
	"children",
	"cooking",
	"gardening",
	"fashion",
	"beauty",
	"design",
}

func IsKnownTag(tag string) bool {
	return slices.Contains(Tags, tag)
}
