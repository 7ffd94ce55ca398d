package imageedit

import (
	"strings"
)

const (
	variantPrimary     = "primary"
	variantSimplified  = "simplified"
	variantAlternative = "alternative"
)

const genericSystemPrompt = "You are a professional product photographer retouching a seller's photo for an online marketplace. " +
	"Keep the product itself unchanged in shape, color and branding. Improve lighting, clarity and composition."

var categorySystemPrompts = map[string]string{
	"jewelry": "You are a jewelry photographer. Keep metal tones and stones accurate, add crisp specular highlights, " +
		"and place the piece on a clean neutral surface with a shallow depth of field.",
	"clothing": "You are an apparel photographer. Keep fabric texture, cut and color faithful, remove wrinkles and lint, " +
		"and present the garment on a clean flat lay or on-figure setting with even light.",
	"home_decor": "You are an interior stylist. Place the item in a warm, uncluttered room scene that shows its scale, " +
		"with natural window light and complementary props that do not distract.",
	"art": "You are photographing artwork for sale. Keep the artwork's colors and proportions exact, square it to the frame, " +
		"and optionally show it mounted on a softly lit wall.",
	"accessories": "You are an accessories photographer. Keep materials and hardware accurate, use soft directional light, " +
		"and show the item on a minimal background with a subtle shadow.",
	"beauty": "You are a cosmetics photographer. Keep packaging text and colors exact, use bright clean light, " +
		"and stage the product with fresh, minimal props.",
	"craft_supplies": "You are photographing craft supplies. Show texture and color accurately, arrange items neatly, " +
		"and use a bright tabletop setting.",
	"digital": "You are preparing a mockup for a digital download. Present the design on a realistic printed sheet or screen " +
		"with clean framing and no extra text.",
}

var categoryAliases = map[string]string{
	"jewellery": "jewelry",
	"apparel":   "clothing",
	"fashion":   "clothing",
	"home":      "home_decor",
	"homedecor": "home_decor",
	"decor":     "home_decor",
	"wall_art":  "art",
	"artwork":   "art",
	"bags":      "accessories",
	"cosmetics": "beauty",
	"supplies":  "craft_supplies",
	"pattern":   "digital",
	"patterns":  "digital",
	"printable": "digital",
}

var platformHints = map[string]string{
	"etsy":    "The photo will be an Etsy listing image: warm, handmade feel, square-friendly framing.",
	"amazon":  "The photo will be an Amazon main image: pure white background, product fills most of the frame.",
	"shopify": "The photo will be used on a Shopify storefront: consistent, brand-neutral studio look.",
	"ebay":    "The photo will be an eBay listing image: clear, accurate, well lit.",
}

const simplifiedPrompt = "Enhance this product image: improve the lighting, sharpen details, clean up the background and keep the product unchanged."

const alternativePrompt = "Edit the attached product photo so it looks professional and ready for an online store. " +
	"Return the edited photo. The output MUST be an image."

func normalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	c = strings.NewReplacer(" ", "_", "-", "_").Replace(c)
	if alias, ok := categoryAliases[c]; ok {
		return alias
	}
	return c
}

// systemPromptFor returns the category prompt, or the generic one for an
// unknown category.
func systemPromptFor(category string) string {
	if p, ok := categorySystemPrompts[normalizeCategory(category)]; ok {
		return p
	}
	return genericSystemPrompt
}

func primaryPrompt(category, platform, instruction string) string {
	var b strings.Builder
	b.WriteString(systemPromptFor(category))
	if hint, ok := platformHints[strings.ToLower(strings.TrimSpace(platform))]; ok {
		b.WriteString("\n")
		b.WriteString(hint)
	}
	b.WriteString("\n\nEdit instruction: ")
	b.WriteString(strings.TrimSpace(instruction))
	b.WriteString("\nReturn the edited image.")
	return b.String()
}

func simplifiedVariant(instruction string) string {
	return simplifiedPrompt + "\nSeller request: " + strings.TrimSpace(instruction)
}

func alternativeVariant(instruction string) string {
	return alternativePrompt + "\nSeller request: " + strings.TrimSpace(instruction)
}
