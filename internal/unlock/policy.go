package unlock

import (
	"context"
	"errors"

	"github.com/yvod/yvod/internal/catalog"
	"github.com/yvod/yvod/internal/progress"
	"github.com/yvod/yvod/internal/user"
)

// ErrAccessDenied the sequential gate rejected the request.
// Not a fault, callers translate it into a 403 or a redirect
var ErrAccessDenied = errors.New("Complete the prerequisite content first")

// Policy decides whether a learner may open a lesson or video.
// Pure predicate over catalog ordering and completion, no state of its own
type Policy struct {
	Catalog    catalog.CatalogRepository
	Calculator *progress.Calculator
}

func NewPolicy(Catalog catalog.CatalogRepository, Calculator *progress.Calculator) *Policy {
	return &Policy{
		Catalog:    Catalog,
		Calculator: Calculator,
	}
}

// CanAccessLesson every same-type lesson ordered before this one must be
// complete. Order 0 lessons are always open and never gate later ones.
// Coordinators bypass the whole rule
func (p *Policy) CanAccessLesson(ctx context.Context, learner *user.UserModel, lesson *catalog.LessonModel) (bool, error) {
	if learner.Coordinator {
		return true, nil
	}
	if lesson.Order == 0 {
		return true, nil
	}

	siblings, err := p.Catalog.GetLessonsByType(ctx, lesson.TypeID)
	if err != nil {
		return false, err
	}
	for _, prior := range siblings {
		if prior.Order <= 0 || prior.Order >= lesson.Order {
			continue
		}
		done, err := p.Calculator.LessonComplete(ctx, learner.ID, prior)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
	}
	return true, nil
}

// CanAccessVideo granularity decides the gate: per-video types require every
// earlier video of the lesson (ascending id) to be complete, per-lesson types
// delegate to CanAccessLesson, ungated types are always open
func (p *Policy) CanAccessVideo(ctx context.Context, learner *user.UserModel, video *catalog.VideoModel) (bool, error) {
	if learner.Coordinator {
		return true, nil
	}

	lesson := video.Lesson
	switch lesson.Type.Gating {
	case catalog.GranularityVideo:
		for _, prior := range lesson.Videos {
			if prior.ID >= video.ID {
				continue
			}
			done, err := p.Calculator.VideoComplete(ctx, learner.ID, prior)
			if err != nil {
				return false, err
			}
			if !done {
				return false, nil
			}
		}
		return true, nil
	case catalog.GranularityLesson:
		return p.CanAccessLesson(ctx, learner, lesson)
	}
	return true, nil
}
