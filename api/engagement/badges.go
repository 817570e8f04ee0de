package engagement

// BadgeSpec describes one badge and the predicate that earns it.
type BadgeSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`

	earned func(badgeCounts) bool
}

// Badges is the static badge catalog.
var Badges = []BadgeSpec{
	{
		Name:        "First Report",
		Description: "Submit your first valid report.",
		Icon:        "medal-outline",
		Color:       "#CD7F32",
		earned:      func(c badgeCounts) bool { return c.submitted >= 1 },
	},
	{
		Name:        "First Upvote",
		Description: "Cast your first upvote on a report.",
		Icon:        "arrow-up-circle-outline",
		Color:       "#6C757D",
		earned:      func(c badgeCounts) bool { return c.upvotesCast >= 1 },
	},
	{
		Name:        "Community Helper",
		Description: "Upvote 10 different reports.",
		Icon:        "heart-outline",
		Color:       "#E53935",
		earned:      func(c badgeCounts) bool { return c.upvotesCast >= 10 },
	},
	{
		Name:        "Pothole Patriot",
		Description: "Report 5 pothole issues.",
		Icon:        "car-outline",
		Color:       "#007BFF",
		earned:      func(c badgeCounts) bool { return c.pothole >= 5 },
	},
	{
		Name:        "Sanitation Sentinel",
		Description: "Report 5 garbage issues.",
		Icon:        "trash-outline",
		Color:       "#198754",
		earned:      func(c badgeCounts) bool { return c.garbage >= 5 },
	},
	{
		Name:        "Light Bringer",
		Description: "Report 5 streetlight issues.",
		Icon:        "bulb-outline",
		Color:       "#FFC107",
		earned:      func(c badgeCounts) bool { return c.streetlight >= 5 },
	},
	{
		Name:        "Trendsetter",
		Description: "Have one of your reports reach 10 upvotes.",
		Icon:        "trending-up-outline",
		Color:       "#6f42c1",
		earned:      func(c badgeCounts) bool { return c.maxUpvotes >= 10 },
	},
	{
		Name:        "Civic Champion",
		Description: "Get 5 of your reports successfully resolved.",
		Icon:        "shield-checkmark-outline",
		Color:       "#28A745",
		earned:      func(c badgeCounts) bool { return c.resolved >= 5 },
	},
	{
		Name:        "Problem Solver",
		Description: "Get 10 of your reports successfully resolved.",
		Icon:        "star-outline",
		Color:       "#FFD700",
		earned:      func(c badgeCounts) bool { return c.resolved >= 10 },
	},
}
