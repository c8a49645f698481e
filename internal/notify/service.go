package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"docflow/approval-engine/internal/approval"
	"docflow/approval-engine/internal/notify/websocket"
)

// Service delivers workflow events to connected clients and records them. It
// implements approval.Notifier: delivery is fire-and-forget, so Notify never
// blocks the engine and a delivery failure never rolls back a transition.
type Service struct {
	db     *gorm.DB
	hub    *websocket.Hub
	logger *zap.Logger
	queue  chan approval.WorkflowEvent
	done   chan struct{}
}

// NewService migrates the notification tables and starts the delivery worker.
func NewService(db *gorm.DB, hub *websocket.Hub, logger *zap.Logger) (*Service, error) {
	if err := db.AutoMigrate(&SentNotification{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s := &Service{
		db:     db,
		hub:    hub,
		logger: logger,
		queue:  make(chan approval.WorkflowEvent, 512),
		done:   make(chan struct{}),
	}
	go s.deliver()
	return s, nil
}

// Notify implements approval.Notifier.
func (s *Service) Notify(event approval.WorkflowEvent) {
	select {
	case s.queue <- event:
	default:
		s.logger.Warn("notification queue full, dropping event",
			zap.String("kind", string(event.Kind)),
			zap.String("line_id", event.LineID.String()))
	}
}

// Close drains the queue and stops the worker.
func (s *Service) Close() {
	close(s.queue)
	<-s.done
}

func (s *Service) deliver() {
	defer close(s.done)
	for event := range s.queue {
		s.record(event)
		s.broadcast(event)
	}
}

func (s *Service) record(event approval.WorkflowEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to encode notification payload", zap.Error(err))
		return
	}

	notification := SentNotification{
		ID:          uuid.New(),
		LineID:      event.LineID,
		DocumentID:  event.DocumentID,
		StepID:      event.StepID,
		Kind:        string(event.Kind),
		RecipientID: event.ActorID,
		Payload:     payload,
		SentAt:      time.Now(),
	}
	if err := s.db.Create(&notification).Error; err != nil {
		s.logger.Error("failed to record notification",
			zap.String("kind", string(event.Kind)),
			zap.Error(err))
	}
}

func (s *Service) broadcast(event approval.WorkflowEvent) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(websocket.Message{
		Kind:       string(event.Kind),
		LineID:     event.LineID.String(),
		DocumentID: event.DocumentID.String(),
		StepID:     event.StepID.String(),
		ActorID:    event.ActorID.String(),
		Comment:    event.Comment,
		OccurredAt: event.OccurredAt,
	})
}
