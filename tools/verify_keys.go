package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/gosom/maps-recommender/gmaps"
	"github.com/gosom/maps-recommender/llm"
	"github.com/gosom/maps-recommender/runner"
)

// This utility checks that the Places and completion API keys in .env work
// before running a full recommendation.

func main() {
	_ = godotenv.Load()

	var env runner.EnvConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		fmt.Printf("Error reading environment: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	hc := &http.Client{Timeout: 20 * time.Second}

	fmt.Println("=== API Key Verification Tool ===")
	fmt.Println()

	failed := false

	fmt.Println("1. Resolving a well known place through the Places API...")

	if env.PlacesAPIKey() == "" {
		fmt.Println("   ERROR: neither GOOGLE_API_KEY nor GOOGLE_MAPS_API_KEY is set")

		failed = true
	} else {
		places := gmaps.NewPlacesClient(env.PlacesAPIKey(),
			gmaps.WithFindPlaceURL(env.PlacesFindURL),
			gmaps.WithHTTPClient(hc),
		)

		id, found, err := places.FindPlaceID(ctx, "Googleplex Mountain View")

		switch {
		case err != nil:
			fmt.Printf("   FAILED: %v\n", err)

			failed = true
		case !found:
			fmt.Println("   FAILED: no candidates returned, check that the key has the Places API enabled")

			failed = true
		default:
			fmt.Printf("   OK: place id %s\n", id)
		}
	}

	fmt.Println()
	fmt.Println("2. Sending a one word completion request...")

	if env.OpenAIAPIKey == "" {
		fmt.Println("   ERROR: OPENAI_API_KEY is not set")

		failed = true
	} else {
		client := llm.New(env.OpenAIAPIKey, llm.WithBaseURL(env.OpenAIBaseURL), llm.WithHTTPClient(hc))

		answer, err := client.Complete(ctx, "Reply with the single word OK")
		if err != nil {
			fmt.Printf("   FAILED: %v\n", err)

			failed = true
		} else {
			fmt.Printf("   OK: model %s answered %q\n", client.Model(), strings.TrimSpace(answer))
		}
	}

	fmt.Println()

	if failed {
		fmt.Println("❌ at least one key is not working")
		os.Exit(1)
	}

	fmt.Println("✅ both keys are working")
}
