// Package lookup resolves a character together with its current location,
// shared by both transports.
package lookup

import (
	"context"
	"errors"

	"github.com/Sternrassler/rickmorty-client/pkg/client"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/rs/zerolog"
)

// CharacterFunc fetches one character by id.
type CharacterFunc func(ctx context.Context, id int) (model.Character, error)

// LocationFunc fetches one location by id.
type LocationFunc func(ctx context.Context, id int) (model.Location, error)

// CharacterWithLocation fetches the character, then its location if the
// reference resolves. Errors from the character lookup are returned as is.
// A failed location lookup is logged and leaves Location nil, unless the
// context was cancelled or the client closed underneath.
func CharacterWithLocation(ctx context.Context, logger zerolog.Logger, id int, character CharacterFunc, location LocationFunc) (model.CharacterWithLocation, error) {
	ch, err := character(ctx, id)
	if err != nil {
		return model.CharacterWithLocation{}, err
	}
	result := model.CharacterWithLocation{Character: ch}

	locationID, ok := ch.LocationID()
	if !ok {
		logger.Debug().Int("character_id", id).Str("location", ch.Location.Name).Msg("Character has no resolvable location")
		return result, nil
	}

	loc, err := location(ctx, locationID)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, client.ErrClosed) {
			return model.CharacterWithLocation{}, err
		}
		logger.Warn().
			Err(err).
			Int("character_id", id).
			Int("location_id", locationID).
			Msg("Location lookup failed, continuing without location")
		return result, nil
	}
	result.Location = &loc
	return result, nil
}
