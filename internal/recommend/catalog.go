// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package recommend

import (
	"strconv"

	"github.com/tomtom215/tastesync/internal/models"
)

// DemoCatalog returns a fixed catalog of Lombok restaurants for local runs
// and tests. Several entries share a rating and review count so that
// tie-breaking is exercised.
func DemoCatalog() []Restaurant {
	seed := []struct {
		name     string
		location string
		cuisines []string
		rating   float64
		reviews  int
		price    string
		keywords []string
	}{
		{"Warung Menega", "Senggigi", []string{"Seafood", "Indonesian"}, 4.6, 812, "$$", []string{"pantai", "sunset"}},
		{"Ayam Taliwang Irama", "Mataram", []string{"Indonesian"}, 4.5, 1204, "$", []string{"pedas", "keluarga"}},
		{"Sate Rembiga Hj. Sinnah", "Mataram", []string{"Indonesian"}, 4.5, 1204, "$", []string{"pedas", "lokal"}},
		{"Pearl Beach Lounge", "Gili Trawangan", []string{"International", "Bar"}, 4.3, 640, "$$$", []string{"pantai", "romantis"}},
		{"Kayu Cafe", "Gili Trawangan", []string{"Cafe", "Healthy"}, 4.7, 950, "$$", []string{"sarapan", "santai"}},
		{"El Bazar", "Kuta", []string{"International"}, 4.6, 1530, "$$$", []string{"romantis", "keluarga"}},
		{"Nugget's Corner", "Kuta", []string{"Healthy", "Vegetarian"}, 4.4, 410, "$$", []string{"sarapan"}},
		{"Milk Espresso", "Senggigi", []string{"Cafe", "Coffee"}, 4.5, 733, "$$", []string{"santai", "wifi"}},
		{"Square Restaurant", "Senggigi", []string{"International", "Italian"}, 4.4, 520, "$$$", []string{"romantis"}},
		{"Pizzeria Regina", "Gili Air", []string{"Italian", "Pizza"}, 4.3, 388, "$$", []string{"keluarga"}},
		{"Warung Bule", "Kuta", []string{"Seafood", "International"}, 4.2, 290, "$$", []string{"pantai"}},
		{"Nasi Puyung Inaq Esun", "Praya", []string{"Indonesian"}, 4.3, 640, "$", []string{"pedas", "lokal"}},
		{"Bebek Goreng Lombok", "Mataram", []string{"Indonesian"}, 4.1, 305, "$", []string{"keluarga"}},
		{"Coco Loco Tacos", "Kuta", []string{"Mexican", "Tacos"}, 4.2, 198, "$$", []string{"santai"}},
		{"Sasak Cafe", "Tetebatu", []string{"Indonesian", "Cafe"}, 4.6, 122, "$", []string{"sawah", "santai"}},
		{"Jukung Restaurant", "Senggigi", []string{"Seafood", "Asian"}, 4.0, 174, "$$", []string{"pantai"}},
		{"Family Warung", "Gili Air", []string{"Indonesian"}, 4.5, 267, "$", []string{"keluarga", "lokal"}},
		{"The Mexican Kitchen", "Senggigi", []string{"Mexican"}, 4.0, 143, "$$", []string{"keluarga"}},
		{"Green Bowl", "Gili Trawangan", []string{"Healthy", "Vegan"}, 4.5, 267, "$$", []string{"sarapan", "santai"}},
		{"Roti Gempit", "Gili Meno", []string{"Indonesian", "Cafe"}, 4.4, 96, "$", []string{"sarapan"}},
		{"Pasta e Vino", "Kuta", []string{"Italian", "Pasta"}, 4.1, 211, "$$$", []string{"romantis"}},
		{"Kopi Sembalun", "Sembalun", []string{"Coffee", "Cafe"}, 4.8, 87, "$", []string{"gunung", "santai"}},
		{"Ikan Bakar Ampenan", "Ampenan", []string{"Seafood", "Indonesian"}, 4.3, 640, "$", []string{"pedas", "lokal"}},
		{"Sunset Grill", "Gili Trawangan", []string{"Seafood", "Bar"}, 4.2, 455, "$$$", []string{"sunset", "pantai"}},
	}

	out := make([]Restaurant, len(seed))
	for i, s := range seed {
		out[i] = Restaurant{
			ID:          itemID(i + 1),
			Name:        s.name,
			Location:    s.location,
			Cuisines:    s.cuisines,
			Rating:      s.rating,
			ReviewCount: s.reviews,
			PriceRange:  s.price,
			Description: s.name + " di " + s.location + ", Lombok.",
			Address:     s.location + ", Lombok, Nusa Tenggara Barat",
			Keywords:    s.keywords,
		}
	}
	return out
}

func itemID(n int) models.ItemID {
	return models.ItemID(strconv.Itoa(n))
}
