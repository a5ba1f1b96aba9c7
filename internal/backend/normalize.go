package backend

import (
	"encoding/json"
	"fmt"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

// playlistBody is a permissive view over the wrapper shapes the CMS
// has shipped over time. Slides is a pointer so "slides present but
// empty" can be told apart from "no slides key at all".
type playlistBody struct {
	ID     int            `json:"id"`
	Name   string         `json:"name"`
	Slides *[]model.Slide `json:"slides"`
}

type playlistEnvelope struct {
	Playlist *playlistBody `json:"playlist"`
	Data     *struct {
		Playlist *playlistBody `json:"playlist"`
		playlistBody
	} `json:"data"`
	playlistBody
}

// ParsePlaylist normalizes a playlist response into the canonical
// model. Accepted shapes: {playlist:{slides}}, {data:{playlist:{slides}}},
// {slides}, {data:{slides}}. Anything else is rejected with an error so
// the caller can log it, rather than silently guessing.
func ParsePlaylist(raw []byte) (*model.Playlist, error) {
	var env playlistEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("playlist payload is not valid JSON: %w", err)
	}

	for _, body := range candidates(&env) {
		if body != nil && body.Slides != nil {
			return &model.Playlist{ID: body.ID, Name: body.Name, Slides: *body.Slides}, nil
		}
	}
	return nil, fmt.Errorf("playlist payload matches no known shape")
}

func candidates(env *playlistEnvelope) []*playlistBody {
	out := []*playlistBody{env.Playlist}
	if env.Data != nil {
		out = append(out, env.Data.Playlist, &env.Data.playlistBody)
	}
	return append(out, &env.playlistBody)
}
