package portal

import (
	"context"
	"github.com/stretchr/testify/mock"
)

// Stub mocks Portal.
type Stub struct {
	mock.Mock
}

// Publish the given serializable payload to a topic. Calls mock.Mock.
func (s *Stub) Publish(ctx context.Context, topic Topic, payload interface{}) {
	s.Called(ctx, topic, payload)
}
