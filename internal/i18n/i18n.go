// Package i18n holds the English and Arabic display strings of the catalog.
// Item and market names without a translation are shown as they appear in
// the feed.
package i18n

import (
	"strings"

	"storeprice/models"
)

const (
	English = "en"
	Arabic  = "ar"
)

// UI is the fixed text of the catalog page.
type UI struct {
	Title         string `json:"title"`
	Search        string `json:"search"`
	Cheapest      string `json:"cheapest"`
	Back          string `json:"back"`
	ViewPrices    string `json:"viewPrices"`
	SelectedCount string `json:"selectedCount"`
	ViewSelected  string `json:"viewSelected"`
	ClearAll      string `json:"clearAll"`
	SelectedItems string `json:"selectedItems"`
	MaxItems      string `json:"maxItems"`
	MinItems      string `json:"minItems"`
	Theme         string `json:"theme"`
	Dark          string `json:"dark"`
	Light         string `json:"light"`
	NoResults     string `json:"noResults"`
	Close         string `json:"close"`
	Loading       string `json:"loading"`
	Empty         string `json:"empty"`
}

type table struct {
	ui         UI
	categories map[models.Category]string
	items      map[string]string
	markets    map[string]string
}

var tables = map[string]table{
	English: {
		ui: UI{
			Title:         "Store Price Comparison",
			Search:        "Search for an item...",
			Cheapest:      "Cheapest",
			Back:          "Back",
			ViewPrices:    "Tap for prices",
			SelectedCount: "items selected",
			ViewSelected:  "Compare",
			ClearAll:      "Clear",
			SelectedItems: "Selected Items",
			MaxItems:      "Max 3 items",
			MinItems:      "Select 1 item",
			Theme:         "Theme",
			Dark:          "Dark",
			Light:         "Light",
			NoResults:     "No items found",
			Close:         "Close",
			Loading:       "Loading catalog",
			Empty:         "No items yet",
		},
		categories: map[models.Category]string{
			models.CategoryAll:       "All",
			models.CategorySpeed:     "Speedups",
			models.CategoryResources: "Resources",
			models.CategoryHero:      "Hero",
			models.CategoryGear:      "Gear",
			models.CategoryDecor:     "Decor",
		},
	},
	Arabic: {
		ui: UI{
			Title:         "مقارنة أسعار المتجر",
			Search:        "ابحث عن عنصر...",
			Cheapest:      "الأرخص",
			Back:          "رجوع",
			ViewPrices:    "اضغط للأسعار",
			SelectedCount: "عناصر محددة",
			ViewSelected:  "مقارنة",
			ClearAll:      "مسح",
			SelectedItems: "العناصر المختارة",
			MaxItems:      "الحد 3 عناصر",
			MinItems:      "اختر عنصرًا واحدًا",
			Theme:         "المظهر",
			Dark:          "داكن",
			Light:         "فاتح",
			NoResults:     "لم يتم العثور على نتائج",
			Close:         "إغلاق",
			Loading:       "جارٍ تحميل الكتالوج",
			Empty:         "لا توجد عناصر بعد",
		},
		categories: map[models.Category]string{
			models.CategoryAll:       "الكل",
			models.CategorySpeed:     "تسريعات",
			models.CategoryResources: "موارد",
			models.CategoryHero:      "أبطال",
			models.CategoryGear:      "عتاد",
			models.CategoryDecor:     "زينة",
		},
		items: map[string]string{
			"5m Speed-up":          "تسريع 5 دقائق",
			"1h Speed-Up":          "تسريع ساعة",
			"Battle Data 10K":      "بيانات المعركة 10K",
			"Bond Badge":           "شارة الرابطة",
			"Valor Badge":          "شارة الشجاعة",
			"Skill Medal":          "ميدالية المهارة",
			"Upgrade Ore":          "خام الترقية",
			"Drone Parts":          "قطع الطائرة المسيّرة",
			"Training Guidebook":   "دليل التدريب",
			"Training Certificate": "شهادة التدريب",
			"Tower of Victory":     "برج النصر",
			"Enchanted Fungus":     "الفطر المسحور",
		},
		markets: map[string]string{
			"Black Market (Top Row - Regular)":      "السوق السوداء (الصف العلوي - عادي)",
			"Black Market (Top Row - 5$ Bundle)":    "السوق السوداء (الصف العلوي - حزمة 5$)",
			"Black Market (Bottom Row - Regular)":   "السوق السوداء (الصف السفلي - عادي)",
			"Black Market (Bottom Row - 5$ Bundle)": "السوق السوداء (الصف السفلي - حزمة 5$)",
			"Glittering Market (Regular)":           "السوق اللامع (عادي)",
			"Glittering Market (5$ Bundle)":         "السوق اللامع (حزمة 5$)",
			"Total Mobilization (Regular)":          "التعبئة الشاملة (عادي)",
			"Total Mobilization (Milestone #1)":     "التعبئة الشاملة (المرحلة 1)",
			"Total Mobilization (Milestone #2)":     "التعبئة الشاملة (المرحلة 2)",
			"Bounty Hunter (Wandering Merchant)":    "صائد الجوائز (التاجر المتجول)",
			"Summon Supplies (Regular)":             "إمدادات الاستدعاء (عادي)",
			"Summon Supplies (5$ Bundle)":           "إمدادات الاستدعاء (حزمة 5$)",
		},
	},
}

// Language maps lang to a supported language, English when unknown.
func Language(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := tables[lang]; ok {
		return lang
	}
	return English
}

func lookup(lang string) table {
	return tables[Language(lang)]
}

// Strings returns the page text for lang.
func Strings(lang string) UI {
	return lookup(lang).ui
}

// CategoryLabel returns the tab label of c. Unknown categories are shown by
// their identifier.
func CategoryLabel(lang string, c models.Category) string {
	if label, ok := lookup(lang).categories[c]; ok {
		return label
	}
	return string(c)
}

// CategoryLabels returns the tab label of every category.
func CategoryLabels(lang string) map[models.Category]string {
	out := make(map[models.Category]string, len(models.Categories))
	for _, c := range models.Categories {
		out[c] = CategoryLabel(lang, c)
	}
	return out
}

// ItemName returns the translated item name, or name itself.
func ItemName(lang, name string) string {
	return localize(lookup(lang).items, name)
}

// MarketName returns the translated market name, or market itself.
func MarketName(lang, market string) string {
	return localize(lookup(lang).markets, market)
}

func localize(names map[string]string, raw string) string {
	if v, ok := names[raw]; ok && v != "" {
		return v
	}
	return raw
}
