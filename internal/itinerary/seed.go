package itinerary

// DefaultSeed returns the demo itineraries shown on a fresh device that has
// never reached the remote service and has nothing to migrate.
func DefaultSeed() []Record {
	return []Record{
		{
			ID:          "1",
			Title:       "Darjeeling Tea Gardens Tour",
			Destination: "Darjeeling",
			Duration:    3,
			StartDate:   "2023-06-15",
			TotalCost:   15000,
			Tags:        []string{"Tea Gardens", "Mountain Views", "Cultural"},
			SavedAt:     "2023-05-10",
		},
		{
			ID:          "2",
			Title:       "Kalimpong Heritage Trail",
			Destination: "Kalimpong",
			Duration:    4,
			StartDate:   "2023-07-22",
			TotalCost:   18000,
			Tags:        []string{"Heritage", "Hiking", "Local Cuisine"},
			SavedAt:     "2023-06-05",
		},
		{
			ID:          "3",
			Title:       "Dooars Wildlife Adventure",
			Destination: "Dooars",
			Duration:    5,
			StartDate:   "2023-09-10",
			TotalCost:   25000,
			Tags:        []string{"Wildlife", "Safari", "Nature"},
			SavedAt:     "2023-08-01",
		},
		{
			ID:          "4",
			Title:       "Siliguri City Exploration",
			Destination: "Siliguri",
			Duration:    2,
			StartDate:   "2023-10-05",
			TotalCost:   8000,
			Tags:        []string{"Urban", "Shopping", "Food"},
			SavedAt:     "2023-09-15",
		},
	}
}
