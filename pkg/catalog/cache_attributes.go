package catalog

import (
	"context"
)

// indexAttributes builds the per-definition attribute indexes of an entry.
// Within one definition the first attribute with a given id or name wins.
func indexAttributes(snap *snapshot, entry *Entry) {
	if len(entry.Attributes) == 0 {
		return
	}

	byName := make(map[string]AttributeDef, len(entry.Attributes))
	byID := make(map[string]AttributeDef, len(entry.Attributes))

	for _, attr := range entry.Attributes {
		if _, ok := byName[attr.Name]; !ok {
			byName[attr.Name] = attr
		}

		if _, ok := byID[attr.ID]; !ok {
			byID[attr.ID] = attr
		}
	}

	snap.attrsByName[entry.ID] = byName
	snap.attrsByID[entry.ID] = byID
}

// GetAttributeDef returns an attribute of a custom metadata definition, both
// looked up by name. A miss on either level triggers one reload.
func (c *TenantCache) GetAttributeDef(ctx context.Context, category Category, setName, attrName string) (AttributeDef, error) {
	return resolve(ctx, c, category, setName+"."+attrName, func(snap *snapshot) (AttributeDef, bool) {
		set, ok := snap.byName[setName]
		if !ok {
			return AttributeDef{}, false
		}

		attr, ok := snap.attrsByName[set.ID][attrName]

		return attr, ok
	})
}

// GetAttributeID returns the id of an attribute of a custom metadata definition.
func (c *TenantCache) GetAttributeID(ctx context.Context, category Category, setName, attrName string) (string, error) {
	attr, err := c.GetAttributeDef(ctx, category, setName, attrName)
	if err != nil {
		return "", err
	}

	return attr.ID, nil
}

// GetAttributeName is the reverse of GetAttributeID.
func (c *TenantCache) GetAttributeName(ctx context.Context, category Category, setID, attrID string) (string, error) {
	return resolve(ctx, c, category, setID+"."+attrID, func(snap *snapshot) (string, bool) {
		attr, ok := snap.attrsByID[setID][attrID]

		return attr.Name, ok
	})
}
