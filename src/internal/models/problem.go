package models

// Problem is the read-only slice of a challenge this service needs: how long a
// session lives, which task definition to launch, and the solve score.
// Problem CRUD belongs to the platform service that owns the collection.
type Problem struct {
	ID              int    `bson:"problem_id" json:"id"`
	Title           string `bson:"title" json:"title"`
	TaskDefinition  string `bson:"task_definition" json:"-"`
	DurationMinutes int    `bson:"duration_minutes" json:"durationMinutes"`
	Score           int    `bson:"score" json:"score"`
}
