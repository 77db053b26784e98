package mappings

// Data is the parsed structure of the mappings file: brand_id → style_id
// property bags plus the abstract-token → Tailwind-class dictionary,
// grounded on the original's MappingsData (brands, styles, tailwind_token_map).
type Data struct {
	Brands           map[string]map[string]interface{} `json:"brands"`
	Styles           map[string]map[string]interface{} `json:"styles"`
	TailwindTokenMap map[string]string                 `json:"tailwind_token_map"`
}
