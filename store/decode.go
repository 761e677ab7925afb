package store

import (
	"fmt"

	"cloud.google.com/go/firestore"

	"unihousing-notifier/pkg/housing"
)

func alertFromDoc(id string, doc *firestore.DocumentSnapshot) (*housing.Alert, error) {
	var alert housing.Alert
	if err := doc.DataTo(&alert); err != nil {
		return nil, fmt.Errorf("decode alert: %w", err)
	}
	alert.ID = id
	return &alert, nil
}

// listingFromData builds a listing from a raw document map. Listings are
// written by the marketplace application and arrive with two generations of
// field names (camelCase Firestore documents and snake_case JSON exports) and
// several date representations; everything funnels through housing.ToInstant
// so the matcher sees a single instant type.
func listingFromData(id string, data map[string]any) *housing.Listing {
	listing := &housing.Listing{ID: id}

	listing.OwnerID = str(data, "ownerId", "owner_id")
	listing.City = str(data, "city")
	listing.ApartmentType = str(data, "apartmentType", "apartment_type")
	listing.Title = str(data, "title")
	listing.Address = str(data, "address")
	listing.PropertyName = str(data, "propertyName", "property_name")
	listing.Rent = num(data, "rent")

	if t, ok := housing.ToInstant(first(data, "availableFrom", "available_from")); ok {
		listing.AvailableFrom = t
	}
	if t, ok := housing.ToInstant(first(data, "availableTo", "available_to")); ok {
		listing.AvailableTo = t
	}
	if t, ok := housing.ToInstant(first(data, "createdAt", "created_at")); ok {
		listing.CreatedAt = t
	}

	return listing
}

func first(data map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := data[key]; ok {
			return v
		}
	}
	return nil
}

func str(data map[string]any, keys ...string) string {
	s, _ := first(data, keys...).(string)
	return s
}

func num(data map[string]any, keys ...string) int64 {
	switch v := first(data, keys...).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
