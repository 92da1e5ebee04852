package usecase

import (
	"encoding/json"
	"math/rand/v2"
	"os"
	"strings"

	"reelpipe/infrastructure/logger"
)

const fallbackCaption = "Check this out!"

// CaptionPool hands out a random caption with the configured hashtags
// appended.
type CaptionPool struct {
	captions []string
	hashtags []string
}

func NewCaptionPool(captions, hashtags []string) *CaptionPool {
	clean := make([]string, 0, len(captions))
	for _, c := range captions {
		if c = strings.TrimSpace(c); c != "" {
			clean = append(clean, c)
		}
	}
	return &CaptionPool{captions: clean, hashtags: hashtags}
}

// LoadCaptionPool reads a JSON array of strings. A missing or unreadable
// file leaves the pool with the fallback caption.
func LoadCaptionPool(path string, hashtags []string) *CaptionPool {
	var captions []string
	data, err := os.ReadFile(path)
	if err == nil {
		err = json.Unmarshal(data, &captions)
	}
	if err != nil {
		logger.GetLogger().WithField("path", path).WithError(err).Warn("Captions file not loaded, using fallback caption")
	}
	return NewCaptionPool(captions, hashtags)
}

func (p *CaptionPool) Next() string {
	caption := fallbackCaption
	if len(p.captions) > 0 {
		caption = p.captions[rand.IntN(len(p.captions))]
	}
	if len(p.hashtags) == 0 {
		return caption
	}
	return caption + "\n\n" + strings.Join(p.hashtags, " ")
}
