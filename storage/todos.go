package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmcleod/taskveil/internal/util"
	"github.com/jmcleod/taskveil/internal/uuid"
)

// Todo priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// TodoInput is the caller-settable portion of a todo.
type TodoInput struct {
	Title       string
	Description string
	Completed   bool
	Priority    string
	Color       string
	DueDate     *time.Time
}

// TodoFilter selects and pages a todo listing. Nil Completed means both.
type TodoFilter struct {
	Completed *bool
	Priority  string
	Limit     int
	Offset    int
}

func validPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// CreateTodo creates a todo owned by the user.
func (s *Store) CreateTodo(ctx context.Context, userID string, in TodoInput) (Todo, error) {
	in.Title = util.Normalize(strings.TrimSpace(in.Title))
	if in.Title == "" {
		return Todo{}, fmt.Errorf("todo title is required: %w", ErrInvalid)
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !validPriority(in.Priority) {
		return Todo{}, fmt.Errorf("priority %q: %w", in.Priority, ErrInvalid)
	}

	todo := Todo{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Completed:   in.Completed,
		Priority:    in.Priority,
		Color:       in.Color,
		DueDate:     in.DueDate,
	}
	if err := s.db.WithContext(ctx).Create(&todo).Error; err != nil {
		return Todo{}, fmt.Errorf("creating todo: %w", err)
	}
	return todo, nil
}

// Todos lists the user's todos, newest first, applying the filter.
func (s *Store) Todos(ctx context.Context, userID string, filter TodoFilter) ([]Todo, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Completed != nil {
		q = q.Where("completed = ?", *filter.Completed)
	}
	if filter.Priority != "" {
		if !validPriority(filter.Priority) {
			return nil, fmt.Errorf("priority %q: %w", filter.Priority, ErrInvalid)
		}
		q = q.Where("priority = ?", filter.Priority)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var todos []Todo
	if err := q.Order("created_at DESC").Find(&todos).Error; err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	return todos, nil
}

// UpdateTodo replaces the caller-settable fields of an owned todo.
func (s *Store) UpdateTodo(ctx context.Context, userID, todoID string, in TodoInput) (Todo, error) {
	todo, err := s.ownedTodo(ctx, userID, todoID)
	if err != nil {
		return Todo{}, err
	}
	in.Title = util.Normalize(strings.TrimSpace(in.Title))
	if in.Title == "" {
		return Todo{}, fmt.Errorf("todo title is required: %w", ErrInvalid)
	}
	if in.Priority == "" {
		in.Priority = todo.Priority
	}
	if !validPriority(in.Priority) {
		return Todo{}, fmt.Errorf("priority %q: %w", in.Priority, ErrInvalid)
	}

	todo.Title = in.Title
	todo.Description = in.Description
	todo.Completed = in.Completed
	todo.Priority = in.Priority
	todo.Color = in.Color
	todo.DueDate = in.DueDate
	if err := s.db.WithContext(ctx).Save(&todo).Error; err != nil {
		return Todo{}, fmt.Errorf("updating todo %s: %w", todoID, err)
	}
	return todo, nil
}

// ToggleTodo flips an owned todo's completed flag.
func (s *Store) ToggleTodo(ctx context.Context, userID, todoID string) (Todo, error) {
	todo, err := s.ownedTodo(ctx, userID, todoID)
	if err != nil {
		return Todo{}, err
	}
	todo.Completed = !todo.Completed
	if err := s.db.WithContext(ctx).Save(&todo).Error; err != nil {
		return Todo{}, fmt.Errorf("toggling todo %s: %w", todoID, err)
	}
	return todo, nil
}

// DeleteTodo removes an owned todo.
func (s *Store) DeleteTodo(ctx context.Context, userID, todoID string) error {
	if _, err := s.ownedTodo(ctx, userID, todoID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&Todo{}, "id = ?", todoID).Error; err != nil {
		return fmt.Errorf("deleting todo %s: %w", todoID, err)
	}
	return nil
}

func (s *Store) ownedTodo(ctx context.Context, userID, todoID string) (Todo, error) {
	var todo Todo
	if err := s.db.WithContext(ctx).First(&todo, "id = ?", todoID).Error; err != nil {
		return Todo{}, notFound(err, "todo "+todoID)
	}
	if todo.UserID != userID {
		return Todo{}, fmt.Errorf("todo %s belongs to another user: %w", todoID, ErrForbidden)
	}
	return todo, nil
}
