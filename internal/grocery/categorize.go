// Package grocery guesses the default category of a shopping item from its name.
package grocery

import (
	"sort"
	"strings"
)

// Fallback is the category used when nothing matches.
const Fallback = "Other"

var keywords = map[string][]string{
	"Produce": {
		"apple", "banana", "orange", "lemon", "lime", "avocado", "tomato", "potato",
		"onion", "garlic", "lettuce", "spinach", "kale", "broccoli", "carrot", "celery",
		"cucumber", "pepper", "bell pepper", "mushroom", "corn", "zucchini", "grape",
		"strawberry", "strawberries", "blueberry", "blueberries", "berries", "cilantro",
		"parsley", "ginger", "cabbage", "cauliflower", "pear", "peach", "mango",
		"pineapple", "melon", "watermelon", "salad", "herbs", "scallion", "green onion",
	},
	"Dairy": {
		"milk", "cheese", "butter", "yogurt", "yoghurt", "cream", "sour cream",
		"cream cheese", "cottage cheese", "egg", "eggs", "half and half", "mozzarella",
		"cheddar", "parmesan", "feta", "kefir",
	},
	"Meat & Seafood": {
		"chicken", "beef", "pork", "turkey", "bacon", "sausage", "ham", "steak",
		"ground beef", "lamb", "salmon", "tuna steak", "shrimp", "fish", "cod",
		"tilapia", "crab", "lobster", "prosciutto", "salami", "meatballs",
	},
	"Bakery": {
		"bread", "bagel", "bagels", "bun", "buns", "roll", "rolls", "tortilla",
		"tortillas", "croissant", "muffin", "muffins", "baguette", "pita", "cake",
		"donut", "donuts", "sourdough",
	},
	"Pantry": {
		"rice", "pasta", "spaghetti", "noodles", "flour", "sugar", "oats", "oatmeal",
		"cereal", "beans", "black beans", "lentils", "canned", "soup", "broth", "stock",
		"peanut butter", "jam", "honey", "olive oil", "oil", "vinegar", "baking soda",
		"baking powder", "quinoa", "tuna", "tomato sauce", "pasta sauce", "syrup",
	},
	"Frozen": {
		"frozen", "ice cream", "frozen pizza", "popsicle", "popsicles", "frozen vegetables",
		"waffles", "ice",
	},
	"Beverages": {
		"water", "sparkling water", "juice", "orange juice", "coffee", "tea", "soda",
		"beer", "wine", "kombucha", "lemonade", "energy drink",
	},
	"Snacks": {
		"chips", "crackers", "cookies", "pretzels", "popcorn", "nuts", "almonds",
		"granola", "granola bar", "candy", "chocolate", "trail mix",
	},
	"Condiments": {
		"ketchup", "mustard", "mayo", "mayonnaise", "relish", "hot sauce", "soy sauce",
		"salsa", "bbq sauce", "dressing", "salad dressing", "sriracha", "pesto",
	},
	"Spices": {
		"salt", "black pepper", "cinnamon", "paprika", "cumin", "oregano", "basil",
		"thyme", "chili powder", "curry", "nutmeg", "vanilla", "bay leaves", "seasoning",
	},
	"Household": {
		"paper towels", "toilet paper", "trash bags", "dish soap", "detergent",
		"laundry detergent", "sponge", "sponges", "aluminum foil", "foil", "plastic wrap",
		"bleach", "cleaner", "napkins", "batteries", "light bulb",
	},
	"Personal Care": {
		"shampoo", "conditioner", "soap", "body wash", "toothpaste", "toothbrush",
		"deodorant", "lotion", "razor", "razors", "floss", "sunscreen", "tissues",
	},
	"Baby": {
		"diapers", "wipes", "baby wipes", "formula", "baby formula", "baby food",
		"pacifier", "baby",
	},
}

type entry struct {
	phrase   string
	category string
}

var (
	exact   = make(map[string]string)
	phrases []entry
)

func init() {
	for cat, words := range keywords {
		for _, w := range words {
			exact[w] = cat
			phrases = append(phrases, entry{phrase: w, category: cat})
		}
	}
	// Longer phrases are more specific: "ice cream" before "cream", "tomato sauce" before "tomato".
	sort.Slice(phrases, func(i, j int) bool {
		if len(phrases[i].phrase) != len(phrases[j].phrase) {
			return len(phrases[i].phrase) > len(phrases[j].phrase)
		}
		return phrases[i].phrase < phrases[j].phrase
	})
}

// Categorize maps an item name onto one of the default category names.
// Matching is case-insensitive: the whole name first, then the longest
// keyword found on word boundaries. Unknown names fall back to "Other".
func Categorize(name string) string {
	n := normalize(name)
	if n == "" {
		return Fallback
	}
	if cat, ok := exact[n]; ok {
		return cat
	}
	if cat, ok := exact[singular(n)]; ok {
		return cat
	}

	padded := " " + n + " "
	for _, e := range phrases {
		if strings.Contains(padded, " "+e.phrase+" ") || strings.Contains(padded, " "+e.phrase+"s ") {
			return e.category
		}
	}
	return Fallback
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if r == ',' || r == '.' || r == '(' || r == ')' || r == '-' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "oes"):
		return strings.TrimSuffix(s, "es")
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}
