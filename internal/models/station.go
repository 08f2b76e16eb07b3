package models

// Station is a tenant running its own tasks and invite codes.
type Station struct {
	ID      string `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	OwnerID string `db:"owner_id" json:"owner_id"`
	Status  string `db:"status" json:"status"`
}
