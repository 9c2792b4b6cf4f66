package dataset

// Built-in datasets keep the service usable with no data directory. demo-v1
// is small and deterministic; the others are trimmed samples of the public
// benchmarks they are named after.
var builtins = map[string]*Dataset{
	"demo-v1": {
		ID:          "demo-v1",
		Name:        "Demo Benchmark v1",
		Description: "Three-question smoke benchmark with known answers",
		Categories:  []string{"arithmetic", "general_knowledge"},
		Questions: []Question{
			{
				ID:       "demo-1",
				Category: "arithmetic",
				Prompt:   "What is 2+2? Reply with only the number.",
				Answer:   "4",
			},
			{
				ID:       "demo-2",
				Category: "general_knowledge",
				Prompt:   "What is the capital of France? Reply with only the city name.",
				Answer:   "Paris",
			},
			{
				ID:       "demo-3",
				Category: "arithmetic",
				Prompt:   "What is 12*12? Reply with only the number.",
				Answer:   "144",
			},
		},
	},
	"mmlu-reasoning-v1": {
		ID:          "mmlu-reasoning-v1",
		Name:        "MMLU Reasoning Benchmark v1",
		Description: "Logical reasoning sample drawn from MMLU-style questions",
		Categories:  []string{"mathematics", "formal_logic"},
		Questions: []Question{
			{
				ID:       "mmlu-1",
				Category: "mathematics",
				Prompt:   "What is the derivative of x^2?",
				Options:  []string{"x", "2x", "x^2", "2"},
				Answer:   "2x",
			},
			{
				ID:       "mmlu-2",
				Category: "formal_logic",
				Prompt:   "If all A are B and all B are C, then all A are:",
				Options:  []string{"A", "B", "C", "none of the above"},
				Answer:   "C",
			},
			{
				ID:       "mmlu-3",
				Category: "mathematics",
				Prompt:   "What is the least prime number greater than 10?",
				Options:  []string{"11", "12", "13", "15"},
				Answer:   "11",
			},
			{
				ID:       "mmlu-4",
				Category: "formal_logic",
				Prompt:   "The negation of \"some birds can fly\" is:",
				Options:  []string{"all birds can fly", "no birds can fly", "some birds cannot fly", "all birds cannot sing"},
				Answer:   "no birds can fly",
			},
		},
	},
	"gsm8k-math-v2": {
		ID:          "gsm8k-math-v2",
		Name:        "GSM8K Math Benchmark v2",
		Description: "Grade-school math word problems, numeric answers",
		Categories:  []string{"arithmetic", "algebra"},
		Questions: []Question{
			{
				ID:        "gsm8k-1",
				Category:  "arithmetic",
				Prompt:    "A box holds 6 eggs. How many eggs are in 7 boxes? Reply with only the number.",
				Answer:    "42",
				Rationale: "7 boxes * 6 eggs = 42",
			},
			{
				ID:        "gsm8k-2",
				Category:  "algebra",
				Prompt:    "If 3x + 5 = 20, what is x? Reply with only the number.",
				Answer:    "5",
				Rationale: "3x = 15, x = 5",
			},
			{
				ID:        "gsm8k-3",
				Category:  "arithmetic",
				Prompt:    "Ana read 24 pages on Monday and twice as many on Tuesday. How many pages did she read in total? Reply with only the number.",
				Answer:    "72",
				Rationale: "24 + 48 = 72",
			},
		},
	},
}
