package model

// Slide is a single item inside a playlist. Duration is in seconds.
type Slide struct {
	ID       int     `json:"id"`
	Name     string  `json:"name,omitempty"`
	Type     string  `json:"type,omitempty"`
	MediaURL string  `json:"media_url,omitempty"`
	Duration float64 `json:"duration"`
}

type Playlist struct {
	ID     int     `json:"id"`
	Name   string  `json:"name,omitempty"`
	Slides []Slide `json:"slides"`
}

// HasSlides reports whether the playlist carries at least one slide.
// A playlist that fails this test is treated as absent by the decision
// engine, regardless of how it was fetched.
func (p *Playlist) HasSlides() bool {
	return p != nil && len(p.Slides) > 0
}

// TotalDuration is the length of one full loop, in seconds.
func (p *Playlist) TotalDuration() float64 {
	if p == nil {
		return 0
	}
	var total float64
	for _, s := range p.Slides {
		total += s.Duration
	}
	return total
}

// MediaURLs returns the distinct non-empty media URLs in slide order,
// used to warm the media cache when a playlist goes on screen.
func (p *Playlist) MediaURLs() []string {
	if p == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(p.Slides))
	urls := make([]string, 0, len(p.Slides))
	for _, s := range p.Slides {
		if s.MediaURL == "" {
			continue
		}
		if _, ok := seen[s.MediaURL]; ok {
			continue
		}
		seen[s.MediaURL] = struct{}{}
		urls = append(urls, s.MediaURL)
	}
	return urls
}
