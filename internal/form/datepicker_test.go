package form

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/api/schemas"
	"github.com/xkilldash9x/flightscout/internal/browser/fakepage"
)

func newPicker(s *site, maxAdvances int) *DatePicker {
	return NewDatePicker(s.cfg.SiteCfg.Selectors, maxAdvances, time.Second, zap.NewNop())
}

func TestDatePickerSelect(t *testing.T) {
	ctx := context.Background()

	t.Run("target month already shown", func(t *testing.T) {
		s := newSite("2025-10").days("2025-10-22")
		picker := newPicker(s, 24)

		advances, err := picker.Select(ctx, s.interactor(), mustDate("2025-10-22"))
		require.NoError(t, err)
		assert.Equal(t, 0, advances)
		assert.Equal(t, PickerDone, picker.State())
		clicks := s.page.CallsOf(fakepage.OpClick)
		require.Len(t, clicks, 2, "only the date input should be clicked before the day")
		assert.Equal(t, s.cfg.SiteCfg.Selectors.Day("2025-10-22"), clicks[1].Selector)
	})

	t.Run("advances month by month", func(t *testing.T) {
		s := newSite("2025-07").days("2025-10-22")
		picker := newPicker(s, 24)

		advances, err := picker.Select(ctx, s.interactor(), mustDate("2025-10-22"))
		require.NoError(t, err)
		assert.Equal(t, 3, advances)

		var clicked []string
		for _, c := range s.page.CallsOf(fakepage.OpClick) {
			clicked = append(clicked, c.Selector)
		}
		sel := s.cfg.SiteCfg.Selectors
		assert.Equal(t, []string{sel.DateInput, sel.NextMonth, sel.NextMonth, sel.NextMonth, sel.Day("2025-10-22")}, clicked)
	})

	t.Run("two month captions match either month", func(t *testing.T) {
		s := newSite("2025-09").days("2025-10-22")
		s.page.SetText(s.cfg.SiteCfg.Selectors.DateCaption, "September 2025\n  October 2025")
		advances, err := newPicker(s, 24).Select(ctx, s.interactor(), mustDate("2025-10-22"))
		require.NoError(t, err)
		assert.Equal(t, 0, advances)
	})

	t.Run("navigation is bounded", func(t *testing.T) {
		s := newSite("2025-01").days("2027-06-01")
		picker := newPicker(s, 24)

		advances, err := picker.Select(ctx, s.interactor(), mustDate("2027-06-01"))
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrNavigationExhausted)

		var navErr *schemas.NavigationExhaustedError
		require.ErrorAs(t, err, &navErr)
		assert.Equal(t, "June 2027", navErr.Target)
		assert.Equal(t, "January 2027", navErr.LastCaption)
		assert.Equal(t, 24, navErr.Advances)
		assert.Equal(t, 24, advances)
		assert.Len(t, s.page.CallsOf(fakepage.OpClick), 25, "date input plus exactly 24 advances")
		assert.Equal(t, PickerSearching, picker.State())
	})

	t.Run("a past month never loops forever", func(t *testing.T) {
		s := newSite("2025-10")
		_, err := newPicker(s, 5).Select(ctx, s.interactor(), mustDate("2025-03-10"))
		assert.ErrorIs(t, err, schemas.ErrNavigationExhausted)
	})

	t.Run("missing day cell is not selectable", func(t *testing.T) {
		s := newSite("2025-10")
		picker := newPicker(s, 24)

		_, err := picker.Select(ctx, s.interactor(), mustDate("2025-10-22"))
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrElementNotFound)

		var nf *schemas.ElementNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, schemas.ElementDay, nf.Kind)
		assert.Equal(t, "2025-10-22", nf.Key)
		assert.Equal(t, PickerSelecting, picker.State())
	})

	t.Run("unclickable day cell is not selectable", func(t *testing.T) {
		s := newSite("2025-10").days("2025-10-22")
		s.page.FailOn(s.cfg.SiteCfg.Selectors.Day("2025-10-22"), errors.New("element is disabled"))

		_, err := newPicker(s, 24).Select(ctx, s.interactor(), mustDate("2025-10-22"))
		var nf *schemas.ElementNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, schemas.ElementDay, nf.Kind)
	})

	t.Run("modal that never opens", func(t *testing.T) {
		s := newSite("2025-10").days("2025-10-22")
		s.page.Remove(s.cfg.SiteCfg.Selectors.DateModal)

		_, err := newPicker(s, 24).Select(ctx, s.interactor(), mustDate("2025-10-22"))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestPickerStateString(t *testing.T) {
	assert.Equal(t, "closed", PickerClosed.String())
	assert.Equal(t, "open-searching", PickerSearching.String())
	assert.Equal(t, "selecting", PickerSelecting.String())
	assert.Equal(t, "done", PickerDone.String())
}

func TestCaptionShows(t *testing.T) {
	tests := []struct {
		caption string
		want    bool
	}{
		{"October 2025", true},
		{"September 2025\n  October 2025", true},
		{"October\n2025", true},
		{"october 2025", false},
		{"OCTOBER 2025", false},
		{"October 2026", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, captionShows(tt.caption, "October 2025"), "caption %q", tt.caption)
	}
}
