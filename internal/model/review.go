package model

import "time"

// Review is a user's review of a service.
//
// ServiceTitle is copied from the service when the review is written and is
// not updated if the service is renamed later.
type Review struct {
	ID           string    `json:"_id"`
	ServiceID    string    `json:"serviceId"`
	ServiceTitle string    `json:"serviceTitle"`
	Rating       int       `json:"rating"`
	ReviewText   string    `json:"reviewText"`
	UserEmail    string    `json:"userEmail"`
	UserName     string    `json:"userName"`
	UserPhoto    string    `json:"userPhoto"`
	PostedDate   time.Time `json:"postedDate"`
}

// Stats holds the aggregate counts shown on the home page.
type Stats struct {
	Users    int `json:"users"`
	Services int `json:"services"`
	Reviews  int `json:"reviews"`
}
