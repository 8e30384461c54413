package soil

// Fallbacks returned for categories missing from a table.
const (
	PHNotAvailable        = "pH range not available"
	CropsNotAvailable     = "crop information not available"
	PotassiumNotAvailable = "potassium range not available"
)

// Undefined marks a table entry with no meaningful value. Coverage differs
// between tables and is kept as-is.
const Undefined = "undefined"

var phRanges = map[Category]string{
	Alike:    "5.5 to 7.5",
	Clay:     "6.0 to 7.5",
	DryRocky: "5.5 to 7.0",
	Grassy:   "6.0 to 7.5",
	Gravel:   "6.0 to 7.5",
	Humus:    "5.5 to 7.0",
	Loam:     "6.0 to 7.0",
	NotSoil:  Undefined,
	Sandy:    "5.5 to 7.5",
	Silty:    "6.0 to 7.5",
	Yellow:   "5.0 to 6.5",
}

var crops = map[Category]string{
	Alike:    "Wide variety of crops depending on composition (e.g., wheat, corn, tomatoes)",
	Clay:     "Rice, potatoes, cabbage, beans, carrots",
	DryRocky: "Very few crops; only drought-resistant plants like cacti",
	Grassy:   "Wheat, barley, oats, corn, lettuce, spinach",
	Gravel:   "Drought-resistant crops like grapes, olives, root vegetables",
	Humus:    "Leafy vegetables, tomatoes, fruits, root crops, herbs",
	Loam:     "Wheat, corn, carrots, beans, herbs",
	NotSoil:  "No crops can grow here unless soil is added",
	Sandy:    "Carrots, potatoes, onions, strawberries",
	Silty:    "Lettuce, tomatoes, peas, cabbage",
	Yellow:   "Rice, millet, legumes",
}

var potassiumRanges = map[Category]string{
	Alike:    Undefined,
	Clay:     "0.5% to 3%",
	DryRocky: "0.05% to 0.3%",
	Grassy:   "0.3% to 1.5%",
	Gravel:   "0.05% to 0.3%",
	Humus:    "1% to 3%",
	Loam:     "0.5% to 2.5%",
	NotSoil:  Undefined,
	Sandy:    "0.1% to 0.5%",
	Silty:    "0.1% to 0.8%",
	Yellow:   "0.2% to 1%",
}

// PHRange returns the typical pH range for a soil category.
func PHRange(category string) string {
	return lookup(phRanges, category, PHNotAvailable)
}

// Crops returns crops suited to a soil category.
func Crops(category string) string {
	return lookup(crops, category, CropsNotAvailable)
}

// Potassium returns the typical potassium content for a soil category.
func Potassium(category string) string {
	return lookup(potassiumRanges, category, PotassiumNotAvailable)
}

// Attributes is the static data displayed alongside a prediction.
type Attributes struct {
	PHRange   string `json:"ph_range"`
	Crops     string `json:"crops"`
	Potassium string `json:"potassium"`
}

// AttributesFor runs the three lookups independently.
func AttributesFor(c Category) Attributes {
	return Attributes{
		PHRange:   PHRange(string(c)),
		Crops:     Crops(string(c)),
		Potassium: Potassium(string(c)),
	}
}

func lookup(table map[Category]string, key, fallback string) string {
	if v, ok := table[normalize(key)]; ok && v != "" {
		return v
	}
	return fallback
}
