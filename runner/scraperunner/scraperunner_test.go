package scraperunner

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosom/maps-recommender/gmaps"
	"github.com/gosom/maps-recommender/runner"
)

var sample = []gmaps.Restaurant{
	{Name: "Takumi", Rating: "4.6", Reviews: "(1,204)", Details: "Ramen · Stratumseind 27"},
	{Name: "Tony's", Rating: "4.1", Reviews: "(30)", Details: "Pizza"},
}

func TestWriteResults_JSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeResults(&buf, sample, true))

	var got []gmaps.Restaurant
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, sample, got)
	require.Contains(t, buf.String(), "\n  {")
}

func TestWriteResults_EmptyJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeResults[gmaps.Restaurant](&buf, nil, true))
	require.Equal(t, "[]\n", buf.String())
}

func TestWriteResults_CSV(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeResults(&buf, sample, false))
	require.Equal(t,
		"name,rating,reviews,details\n"+
			"Takumi,4.6,\"(1,204)\",Ramen · Stratumseind 27\n"+
			"Tony's,4.1,(30),Pizza\n",
		buf.String())
}

func TestWriteResults_Locations(t *testing.T) {
	locations := []gmaps.RestaurantLocation{
		{Name: "Takumi", Location: "Stratumseind 27, Eindhoven"},
		{Name: "Tony's", Location: "Markt 5"},
	}

	var buf bytes.Buffer

	require.NoError(t, writeResults(&buf, locations, false))
	require.Equal(t,
		"name,location\n"+
			"Takumi,\"Stratumseind 27, Eindhoven\"\n"+
			"Tony's,Markt 5\n",
		buf.String())

	buf.Reset()

	require.NoError(t, writeResults(&buf, locations, true))
	require.JSONEq(t, `[
		{"name":"Takumi","location":"Stratumseind 27, Eindhoven"},
		{"name":"Tony's","location":"Markt 5"}
	]`, buf.String())
}

func TestNew_WrongMode(t *testing.T) {
	_, err := New(&runner.Config{RunMode: runner.RunModeWeb})
	require.ErrorIs(t, err, runner.ErrInvalidRunMode)
}

func TestClose_NoFile(t *testing.T) {
	r := &scrapeRunner{}
	require.NoError(t, r.Close(context.Background()))
}
