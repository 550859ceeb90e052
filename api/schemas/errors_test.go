package schemas

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHelpersWrapSentinels(t *testing.T) {
	assert.ErrorIs(t, ElementNotFoundError("#x"), ErrElementNotFound)
	assert.ErrorIs(t, SelectorTimeoutError("#x", 1500), ErrSelectorTimeout)
	assert.ErrorIs(t, ActionFailureError("click", "#x", errors.New("boom")), ErrActionFailure)
}

func TestErrorMessagesCarryContext(t *testing.T) {
	err := SelectorTimeoutError("#submit", 3000)
	assert.Contains(t, err.Error(), "#submit")
	assert.Contains(t, err.Error(), "3000ms")

	err = ActionFailureError("select_option", "#size", errors.New("no option"))
	assert.Contains(t, err.Error(), "select_option")
	assert.Contains(t, err.Error(), "no option")
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("tool boundary: %w", ElementNotFoundError("#gone"))
	assert.ErrorIs(t, wrapped, ErrElementNotFound)
	assert.NotErrorIs(t, wrapped, ErrActionFailure)
}
