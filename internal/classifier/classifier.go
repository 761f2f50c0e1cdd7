package classifier

import (
	"strings"

	"storeprice/models"
)

type rule struct {
	category models.Category
	keywords []string
}

// rules are evaluated in order and the first matching group wins. Names often
// carry keywords from several groups ("Hero Exclusive Weapon Shard"), so the
// order is part of the contract.
var rules = []rule{
	{models.CategorySpeed, []string{"speed-up"}},
	{models.CategoryResources, []string{"iron", "food", "coin", "resource", "battle data"}},
	{models.CategoryHero, []string{"hero", "shard", "medal", "skill", "exp", "recruit", "chip", "weapon"}},
	{models.CategoryGear, []string{"drone", "gear", "blueprint", "ore", "ceramic", "upgrade", "valor", "guidebook", "certificate", "trooper"}},
	{models.CategoryDecor, []string{"decor", "tower", "badge", "fungus", "propeller"}},
}

// Classify assigns a category to an item name by keyword matching. Names that
// match nothing land in CategoryAll.
func Classify(name string) models.Category {
	if name == "" {
		return models.CategoryAll
	}
	k := strings.ToLower(name)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(k, kw) {
				return r.category
			}
		}
	}
	return models.CategoryAll
}
