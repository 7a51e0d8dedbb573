package sandbox

import (
	"time"

	"github.com/tanderapp/tander/internal/api"
)

// demoPassword opens every seeded account; the sandbox is for demos and
// tests, not for keeping secrets.
const demoPassword = "mahal123"

var seedCast = []Account{
	{Phone: "09170000001", Profile: api.Profile{ID: 1, Name: "Rosa Manalo", Age: 63, City: "Cebu City",
		Bio:       "Retired teacher, three grandkids, one noisy parrot. Looking for someone to share merienda and long stories with.",
		PhotoURL:  "https://cdn.tander.ph/photos/rosa.jpg",
		Interests: []string{"videoke", "gardening", "church choir"}}},
	{Phone: "09170000002", Profile: api.Profile{ID: 2, Name: "Lito Bautista", Age: 67, City: "Cebu City",
		Bio:       "Former seaman, now happiest tending my orchids and cooking Sunday adobo for anyone who shows up.",
		PhotoURL:  "https://cdn.tander.ph/photos/lito.jpg",
		Interests: []string{"cooking", "orchids", "chess at the plaza"}}},
	{Phone: "09170000003", Profile: api.Profile{ID: 3, Name: "Teresa Villanueva", Age: 61, City: "Quezon City",
		Bio:       "Widowed five years, done being sad. Ballroom dancing on Fridays, mahjong on Sundays.",
		PhotoURL:  "https://cdn.tander.ph/photos/teresa.jpg",
		Interests: []string{"ballroom dancing", "mahjong", "baking"}}},
	{Phone: "09170000004", Profile: api.Profile{ID: 4, Name: "Carmen Reyes", Age: 65, City: "Manila",
		Bio:       "Retired nurse from PGH. I walk Luneta every morning and I never miss a sunset by the bay.",
		PhotoURL:  "https://cdn.tander.ph/photos/carmen.jpg",
		Interests: []string{"morning walks", "history books", "karaoke"}}},
	{Phone: "09170000005", Profile: api.Profile{ID: 5, Name: "Eduardo Santos", Age: 68, City: "Cebu City",
		Bio:       "Jeepney operator for thirty years. Now I just drive to the beach. Join me?",
		PhotoURL:  "https://cdn.tander.ph/photos/eduardo.jpg",
		Interests: []string{"beach trips", "basketball on TV", "grilling"}}},
	{Phone: "09170000006", Profile: api.Profile{ID: 6, Name: "Norma Dela Cruz", Age: 62, City: "Davao City",
		Bio:       "Durian farmer and proud of it. Looking for a dance partner who is not afraid of strong fruit.",
		PhotoURL:  "https://cdn.tander.ph/photos/norma.jpg",
		Interests: []string{"line dancing", "farming", "durian"}}},
	{Phone: "09170000007", Profile: api.Profile{ID: 7, Name: "Ramon Aquino", Age: 70, City: "Manila",
		Bio:       "Retired accountant. The numbers I care about now: 18 holes, 2 grandchildren, 1 good cup of barako.",
		PhotoURL:  "https://cdn.tander.ph/photos/ramon.jpg",
		Interests: []string{"golf", "coffee", "crossword puzzles"}}},
	{Phone: "09170000008", Profile: api.Profile{ID: 8, Name: "Luz Fernandez", Age: 64, City: "Quezon City",
		Bio:       "I sell the best empanada in our barangay. Second prize in the 1998 santacruzan, still got it.",
		PhotoURL:  "https://cdn.tander.ph/photos/luz.jpg",
		Interests: []string{"cooking", "novenas", "plant collecting"}}},
	{Phone: "09170000009", Profile: api.Profile{ID: 9, Name: "Ben Torres", Age: 66, City: "Cebu City",
		Bio:       "Widower, one loyal askal named Bantay. We both enjoy long walks and short naps.",
		PhotoURL:  "https://cdn.tander.ph/photos/ben.jpg",
		Interests: []string{"dogs", "fishing", "old movies"}}},
	{Phone: "09170000010", Profile: api.Profile{ID: 10, Name: "Aurora Mendoza", Age: 59, City: "Iloilo City",
		Bio:       "Youngest of the barkada, they say. Retired bank teller who never retired from dancing.",
		PhotoURL:  "https://cdn.tander.ph/photos/aurora.jpg",
		Interests: []string{"zumba", "beach volleyball", "gardening"}}},
	{Phone: "09170000011", Profile: api.Profile{ID: 11, Name: "Domingo Cruz", Age: 72, City: "Baguio",
		Bio:       "Strawberry farmer up in La Trinidad. Cold hands, warm heart, as they say.",
		PhotoURL:  "https://cdn.tander.ph/photos/domingo.jpg",
		Interests: []string{"farming", "wood carving", "folk songs"}}},
	{Phone: "09170000012", Profile: api.Profile{ID: 12, Name: "Pilar Ramos", Age: 63, City: "Cebu City",
		Bio:       "Retired principal. Strict with grammar, generous with dessert.",
		PhotoURL:  "https://cdn.tander.ph/photos/pilar.jpg",
		Interests: []string{"reading", "baking", "scrabble"}}},
	{Phone: "09170000013", Profile: api.Profile{ID: 13, Name: "Nestor Garcia", Age: 69, City: "Manila",
		Bio:       "Band guitarist in the seventies. My fingers remember every kundiman.",
		PhotoURL:  "https://cdn.tander.ph/photos/nestor.jpg",
		Interests: []string{"guitar", "kundiman", "vinyl records"}}},
	{Phone: "09170000014", Profile: api.Profile{ID: 14, Name: "Remedios Ocampo", Age: 66, City: "Quezon City",
		Bio:       "Lola to seven, boss to none. Free every day after the 6am mass.",
		PhotoURL:  "https://cdn.tander.ph/photos/remedios.jpg",
		Interests: []string{"bingo", "cooking", "telenovelas"}}},
	{Phone: "09170000015", Profile: api.Profile{ID: 15, Name: "Felipe Navarro", Age: 65, City: "Cebu City",
		Bio:       "Retired mailman. I know every street in this city and the best lechon on each one.",
		PhotoURL:  "https://cdn.tander.ph/photos/felipe.jpg",
		Interests: []string{"cycling", "lechon", "street photography"}}},
	{Phone: "09170000016", Profile: api.Profile{ID: 16, Name: "Corazon Lim", Age: 61, City: "Davao City",
		Bio:       "I run a small sari-sari store and a big garden. Both are always open to friends.",
		PhotoURL:  "https://cdn.tander.ph/photos/corazon.jpg",
		Interests: []string{"gardening", "sewing", "videoke"}}},
	{Phone: "09170000017", Profile: api.Profile{ID: 17, Name: "Armando Salazar", Age: 71, City: "Manila",
		Bio:       "Retired army, active heart. Ask me about the time I met FPJ.",
		PhotoURL:  "https://cdn.tander.ph/photos/armando.jpg",
		Interests: []string{"old action movies", "jogging", "cards"}}},
	{Phone: "09170000018", Profile: api.Profile{ID: 18, Name: "Imelda Bautista", Age: 60, City: "Iloilo City",
		Bio:       "Seamstress with forty years of stories stitched in. Looking for a slow dance, not a fast one.",
		PhotoURL:  "https://cdn.tander.ph/photos/imelda.jpg",
		Interests: []string{"sewing", "slow dancing", "church choir"}}},
	{Phone: "09170000019", Profile: api.Profile{ID: 19, Name: "Rogelio Pascual", Age: 67, City: "Quezon City",
		Bio:       "Tricycle king of our barangay, retired. Now I only drive my apo to school and myself to the bakery.",
		PhotoURL:  "https://cdn.tander.ph/photos/rogelio.jpg",
		Interests: []string{"baking bread", "pigeons", "basketball"}}},
	{Phone: "09170000020", Profile: api.Profile{ID: 20, Name: "Milagros Tan", Age: 64, City: "Cebu City",
		Bio:       "Retired pharmacist. I can still read any doctor's handwriting and any person's heart.",
		PhotoURL:  "https://cdn.tander.ph/photos/milagros.jpg",
		Interests: []string{"crossword puzzles", "herbal plants", "mahjong"}}},
	{Phone: "09170000021", Profile: api.Profile{ID: 21, Name: "Ernesto Villar", Age: 68, City: "Baguio",
		Bio:       "Photographer of weddings, now of sunrises. The fog up here makes everything gentle.",
		PhotoURL:  "https://cdn.tander.ph/photos/ernesto.jpg",
		Interests: []string{"photography", "hiking", "coffee"}}},
	{Phone: "09170000022", Profile: api.Profile{ID: 22, Name: "Gloria Santiago", Age: 62, City: "Manila",
		Bio:       "Retired flight attendant. Been everywhere, now looking for someone worth staying home for.",
		PhotoURL:  "https://cdn.tander.ph/photos/gloria.jpg",
		Interests: []string{"travel stories", "wine", "ballroom dancing"}}},
	{Phone: "09170000023", Profile: api.Profile{ID: 23, Name: "Vicente Robles", Age: 74, City: "Cebu City",
		Bio:       "Oldest member here, they tell me. Age is just the number of stories you have.",
		PhotoURL:  "https://cdn.tander.ph/photos/vicente.jpg",
		Interests: []string{"storytelling", "dominoes", "fishing"}}},
	{Phone: "09170000024", Profile: api.Profile{ID: 24, Name: "Lourdes Abad", Age: 63, City: "Davao City",
		Bio:       "Choir soprano for thirty years. Still hit the high notes, still hit the dance floor.",
		PhotoURL:  "https://cdn.tander.ph/photos/lourdes.jpg",
		Interests: []string{"singing", "dancing", "cooking kakanin"}}},
}

// Seed populates the world with the demo cast, a matched pair with a
// conversation already going, and a few likes waiting to become matches.
// Every account signs in with its listed phone and the password
// "mahal123".
func Seed(s *State) {
	for _, acct := range seedCast {
		a := acct
		a.Password = demoPassword
		s.AddAccount(a)
	}

	// Rosa and Lito already matched; their chat has a little history so
	// the thread screen is not empty on first sign-in.
	if _, _, err := s.RecordSwipe(2, 1, "like"); err != nil {
		panic(err)
	}
	if _, _, err := s.RecordSwipe(1, 2, "like"); err != nil {
		panic(err)
	}
	convID, err := s.StartConversation(1, 2)
	if err != nil {
		panic(err)
	}
	base := s.now().Add(-26 * time.Hour)
	s.SeedMessage(convID, 2, "Kumusta, Rosa! I saw you also sing in the choir. Which parish?", base, "read")
	s.SeedMessage(convID, 1, "Kumusta, Lito! Sto. Niño, alto section. And you grow orchids daw?", base.Add(9*time.Minute), "read")
	s.SeedMessage(convID, 2, "Forty pots and counting. I will show you the waling-waling when it blooms.", base.Add(20*time.Minute), "read")
	s.SeedCallEvent(convID, 2, "audio", 272, "completed", base.Add(22*time.Minute))
	s.SeedMessage(convID, 1, "I would love that. Bring some to mass on Sunday!", base.Add(26*time.Minute), "delivered")

	// Likes already pointed at Rosa: liking back produces an instant
	// match in demos.
	for _, admirer := range []int64{3, 5, 9} {
		if _, _, err := s.RecordSwipe(admirer, 1, "like"); err != nil {
			panic(err)
		}
	}
}
