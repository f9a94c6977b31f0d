package aqi

// Category is the health band an index value falls into.
type Category string

// Health bands.
const (
	Good                        Category = "Good"
	Moderate                    Category = "Moderate"
	UnhealthyForSensitiveGroups Category = "Unhealthy for Sensitive Groups"
	Unhealthy                   Category = "Unhealthy"
	VeryUnhealthy               Category = "Very Unhealthy"
	Hazardous                   Category = "Hazardous"
)

var bands = []struct {
	upper    float64
	category Category
}{
	{50, Good},
	{100, Moderate},
	{150, UnhealthyForSensitiveGroups},
	{200, Unhealthy},
	{300, VeryUnhealthy},
}

// CategoryOf returns the band for an index value. Band upper bounds are
// inclusive; anything above 300 is Hazardous.
func CategoryOf(v float64) Category {
	for _, b := range bands {
		if v <= b.upper {
			return b.category
		}
	}
	return Hazardous
}
