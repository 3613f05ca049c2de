// Package classify derives category tags from a fetched detail payload.
package classify

import (
	"strings"
	"time"

	"github.com/lmei/steamscout/internal/catalog"
	"github.com/lmei/steamscout/internal/config"
)

// ProductTypeGame is the detail payload type value identifying a game.
const ProductTypeGame = "game"

// Classifier evaluates the configured language and feature dimensions
// against detail payloads. It holds no mutable state and is safe to share.
type Classifier struct {
	languages []config.LanguageDimension
	features  []config.FeatureDimension
}

// New builds a Classifier for the configured dimensions.
func New(dims config.DimensionsConfig) *Classifier {
	return &Classifier{
		languages: dims.Languages,
		features:  dims.Features,
	}
}

// DimensionNames lists every configured dimension, languages first. Each
// name corresponds to one category store.
func (c *Classifier) DimensionNames() []string {
	names := make([]string, 0, len(c.languages)+len(c.features))
	for _, l := range c.languages {
		names = append(names, l.Name)
	}
	for _, f := range c.features {
		names = append(names, f.Name)
	}
	return names
}

// Classify derives the classification result for one attribute bag. The
// payload's language fields may be absent or of unexpected shape; both are
// treated as "no support".
func (c *Classifier) Classify(id catalog.AppID, details catalog.AppDetails, checkedAt time.Time) catalog.ClassificationResult {
	result := catalog.ClassificationResult{
		AppID:       id,
		Name:        details.Name,
		ProductType: ProductType(details),
		LastChecked: checkedAt,
	}

	haystack := strings.ToLower(details.SupportedLanguages + "\n" + details.Languages)
	for _, lang := range c.languages {
		if matchesAnyKeyword(haystack, lang.Keywords) {
			result.Dimensions = append(result.Dimensions, lang.Name)
		}
	}
	for _, feat := range c.features {
		if hasCategory(details.Categories, feat.CategoryID) {
			result.Dimensions = append(result.Dimensions, feat.Name)
		}
	}
	return result
}

// ProductType returns the payload's explicit type field, or "unknown".
func ProductType(details catalog.AppDetails) string {
	if details.Type == "" {
		return "unknown"
	}
	return details.Type
}

// IsGame reports whether the payload describes a game-type product.
func IsGame(details catalog.AppDetails) bool {
	return strings.EqualFold(details.Type, ProductTypeGame)
}

func matchesAnyKeyword(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func hasCategory(categories []catalog.Category, id int) bool {
	for _, cat := range categories {
		if cat.ID == id {
			return true
		}
	}
	return false
}
