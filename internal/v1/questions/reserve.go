package questions

import (
	"strings"

	"github.com/quizclash/backend/go/internal/v1/types"
)

// reserveQuestion is one entry of the static fallback bank. Tags feed the
// topic heuristics that decide which entries stand in for a given theme.
type reserveQuestion struct {
	text          string
	options       [4]string
	correctOption int
	tags          []string
}

var reserveBank = []reserveQuestion{
	{"In which year did the first crewed spaceflight take place?", [4]string{"1959", "1961", "1963", "1965"}, 1, []string{"space", "history", "science"}},
	{"Which is the largest ocean on Earth?", [4]string{"Atlantic", "Indian", "Arctic", "Pacific"}, 3, []string{"geography", "nature"}},
	{"Who wrote the novel War and Peace?", [4]string{"Fyodor Dostoevsky", "Leo Tolstoy", "Anton Chekhov", "Ivan Turgenev"}, 1, []string{"literature", "books"}},
	{"Which is the longest river in the world?", [4]string{"Amazon", "Nile", "Yangtze", "Mississippi"}, 1, []string{"geography", "nature"}},
	{"What is the chemical symbol for gold?", [4]string{"Ag", "Au", "Go", "Gd"}, 1, []string{"chemistry", "science"}},
	{"How many degrees are in a right angle?", [4]string{"45", "60", "90", "120"}, 2, []string{"math"}},
	{"What is the capital of Japan?", [4]string{"Beijing", "Seoul", "Tokyo", "Osaka"}, 2, []string{"geography", "countries"}},
	{"Who created the periodic table of chemical elements?", [4]string{"Lomonosov", "Mendeleev", "Curie", "Pasteur"}, 1, []string{"chemistry", "science"}},
	{"Which of these numbers is prime?", [4]string{"21", "27", "29", "33"}, 2, []string{"math"}},
	{"What is the highest mountain above sea level?", [4]string{"Kilimanjaro", "Elbrus", "Everest", "Mont Blanc"}, 2, []string{"geography", "nature"}},
	{"Which gas makes up most of Earth's atmosphere?", [4]string{"Oxygen", "Nitrogen", "Carbon dioxide", "Hydrogen"}, 1, []string{"science", "nature"}},
	{"How many continents are there?", [4]string{"5", "6", "7", "8"}, 2, []string{"geography"}},
	{"Which composer wrote The Nutcracker ballet?", [4]string{"Prokofiev", "Mozart", "Tchaikovsky", "Rachmaninoff"}, 2, []string{"music", "culture"}},
	{"Which instrument measures atmospheric pressure?", [4]string{"Thermometer", "Barometer", "Hygrometer", "Manometer"}, 1, []string{"physics", "science"}},
	{"Which language is used for marking up web pages?", [4]string{"Python", "Java", "HTML", "Go"}, 2, []string{"it", "programming", "technology"}},
	{"How many planets are in the Solar System?", [4]string{"7", "8", "9", "10"}, 1, []string{"astronomy", "space", "science"}},
	{"Who wrote Crime and Punishment?", [4]string{"Pushkin", "Gogol", "Dostoevsky", "Bulgakov"}, 2, []string{"literature", "books"}},
	{"Which instrument measures electric current?", [4]string{"Voltmeter", "Ohmmeter", "Ammeter", "Speedometer"}, 2, []string{"physics", "science"}},
	{"What currency is used in Japan?", [4]string{"Yuan", "Yen", "Won", "Dollar"}, 1, []string{"economics", "countries"}},
	{"What is the capital of France?", [4]string{"Lyon", "Marseille", "Paris", "Nice"}, 2, []string{"geography", "countries"}},
	{"Which organ pumps blood through the human body?", [4]string{"Lungs", "Liver", "Heart", "Kidneys"}, 2, []string{"biology", "medicine", "science"}},
	{"How many bits are in one byte?", [4]string{"4", "8", "16", "32"}, 1, []string{"it", "technology"}},
	{"Which continent is the hottest?", [4]string{"South America", "Africa", "Australia", "Eurasia"}, 1, []string{"geography"}},
	{"In which sport is the term offside used?", [4]string{"Basketball", "Tennis", "Football", "Volleyball"}, 2, []string{"sport"}},
	{"Which process turns a liquid into vapor?", [4]string{"Condensation", "Evaporation", "Melting", "Crystallization"}, 1, []string{"physics", "science"}},
	{"How many sides does a regular hexagon have?", [4]string{"5", "6", "7", "8"}, 1, []string{"math"}},
	{"What is the official language of Brazil?", [4]string{"Spanish", "Portuguese", "English", "French"}, 1, []string{"countries", "geography"}},
	{"Who painted the Mona Lisa?", [4]string{"Michelangelo", "Raphael", "Leonardo da Vinci", "Donatello"}, 2, []string{"art", "culture", "history"}},
}

// reserveQuestions returns total fallback entries, preferring bank entries
// whose tags match words of the topic, then filling round-robin.
func reserveQuestions(topic string, total int) []types.GeneratedQuestion {
	words := strings.Fields(strings.ToLower(topic))

	scored := make([]int, len(reserveBank))
	for i, rq := range reserveBank {
		for _, tag := range rq.tags {
			for _, w := range words {
				if strings.Contains(tag, w) || strings.Contains(w, tag) {
					scored[i]++
				}
			}
		}
	}

	// Stable order: matching entries first, bank order otherwise.
	order := make([]int, 0, len(reserveBank))
	for i, s := range scored {
		if s > 0 {
			order = append(order, i)
		}
	}
	for i, s := range scored {
		if s == 0 {
			order = append(order, i)
		}
	}

	out := make([]types.GeneratedQuestion, total)
	for i := 0; i < total; i++ {
		rq := reserveBank[order[i%len(order)]]
		out[i] = types.GeneratedQuestion{
			Text:          rq.text,
			Options:       append([]string(nil), rq.options[:]...),
			CorrectOption: rq.correctOption,
		}
	}
	return out
}
