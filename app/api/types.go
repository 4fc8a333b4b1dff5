package api

import (
	"creatorank/app/database"
	"creatorank/app/tasks"
)

type Handler struct {
	creatorRepo database.CreatorRepository
	itemRepo    database.ItemRepository
	scoreRepo   database.ScoreRepository
	scheduler   tasks.TaskSchedulerInterface
	version     string
}
