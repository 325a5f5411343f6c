package domain

// Storage gives access to every dev backend repository
type Storage interface {
	Accounts() AccountRepo
	Refresh() RefreshTokenRepo
	Generations() GenerationRepo
}
