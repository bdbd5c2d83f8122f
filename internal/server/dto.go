package server

import (
	"github.com/poisvin/tusk/internal/domain"
)

type CreateTaskRequest struct {
	Title         string   `json:"title"`
	Description   *string  `json:"description,omitempty"`
	ScheduledDate string   `json:"scheduled_date"`
	StartTime     *string  `json:"start_time,omitempty"`
	EndTime       *string  `json:"end_time,omitempty"`
	Status        *string  `json:"status,omitempty"`
	Priority      *string  `json:"priority,omitempty"`
	Category      *string  `json:"category,omitempty"`
	Recurrence    *string  `json:"recurrence,omitempty"`
	WeeklyDays    []string `json:"weekly_days,omitempty"`
	Remind        *bool    `json:"remind,omitempty"`
	TagIDs        []string `json:"tag_ids,omitempty"`
}

type UpdateTaskRequest struct {
	Title         *string   `json:"title,omitempty"`
	Description   *string   `json:"description,omitempty"`
	ScheduledDate *string   `json:"scheduled_date,omitempty"`
	StartTime     *string   `json:"start_time,omitempty"`
	EndTime       *string   `json:"end_time,omitempty"`
	Status        *string   `json:"status,omitempty"`
	Priority      *string   `json:"priority,omitempty"`
	Category      *string   `json:"category,omitempty"`
	Recurrence    *string   `json:"recurrence,omitempty"`
	WeeklyDays    *[]string `json:"weekly_days,omitempty"`
	Remind        *bool     `json:"remind,omitempty"`
	TagIDs        *[]string `json:"tag_ids,omitempty"`
}

type TaskResponse struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	ScheduledDate      string   `json:"scheduled_date"`
	StartTime          *string  `json:"start_time,omitempty"`
	EndTime            *string  `json:"end_time,omitempty"`
	Status             string   `json:"status"`
	Priority           string   `json:"priority"`
	Category           string   `json:"category"`
	Recurrence         string   `json:"recurrence"`
	WeeklyDays         []string `json:"weekly_days,omitempty"`
	RecurrenceParentID *string  `json:"recurrence_parent_id,omitempty"`
	Remind             bool     `json:"remind"`
	CarriedOver        bool     `json:"carried_over"`
	OriginalDate       *string  `json:"original_date,omitempty"`
	TagIDs             []string `json:"tag_ids,omitempty"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

type TagResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	CreatedAt string `json:"created_at"`
}

type DayViewResponse struct {
	Date        string         `json:"date"`
	Tasks       []TaskResponse `json:"tasks"`
	CarriedOver []TaskResponse `json:"carried_over"`
}

type SweepRequest struct {
	TargetDate string `json:"target_date,omitempty"`
}

type SweepResponse struct {
	TargetDate string `json:"target_date"`
	Carried    int64  `json:"carried"`
}

type EventResponse struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts"`
	Type     string `json:"type"`
	EntityID string `json:"entity_id,omitempty"`
	ActorID  string `json:"actor_id,omitempty"`
	Payload  string `json:"payload,omitempty"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		ScheduledDate:      t.ScheduledDate,
		StartTime:          t.StartTime,
		EndTime:            t.EndTime,
		Status:             string(t.Status),
		Priority:           string(t.Priority),
		Category:           string(t.Category),
		Recurrence:         string(t.Recurrence),
		WeeklyDays:         t.WeeklyDays,
		RecurrenceParentID: t.RecurrenceParentID,
		Remind:             t.Remind,
		CarriedOver:        t.CarriedOver,
		OriginalDate:       t.OriginalDate,
		TagIDs:             t.TagIDs,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func mapTasks(tasks []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, taskResponse(t))
	}
	return res
}

func tagResponse(t domain.Tag) TagResponse {
	return TagResponse{ID: t.ID, Name: t.Name, Color: t.Color, CreatedAt: t.CreatedAt}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
