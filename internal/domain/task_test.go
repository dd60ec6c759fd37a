package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeTaskKey(t *testing.T) {
	key := MakeTaskKey("BV1xx411c7mD", "12345")
	assert.Equal(t, `{"bvid":"BV1xx411c7mD","favid":"12345"}`, key)

	// Equal pairs always serialize identically.
	assert.Equal(t, key, MakeTaskKey("BV1xx411c7mD", "12345"))
}

func TestParseTaskKey(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		wantBvid  string
		wantFavid string
		wantErr   bool
	}{
		{
			name:      "round trip",
			key:       MakeTaskKey("BV1", "fav1"),
			wantBvid:  "BV1",
			wantFavid: "fav1",
		},
		{
			name:    "malformed json",
			key:     "not-json",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bvid, favid, err := ParseTaskKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBvid, bvid)
			assert.Equal(t, tt.wantFavid, favid)
		})
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, ValidStatus(s), s)
	}
	assert.False(t, ValidStatus("RUNNING"))
	assert.False(t, ValidStatus("pending"))
	assert.False(t, ValidStatus(""))
}

func TestTaskContextRoundTrip(t *testing.T) {
	ctx := TaskContext{Bvid: "BV1", Favid: "fav1", NameTemplate: "{title}", Batch: true}

	payload, err := ctx.Encode()
	require.NoError(t, err)

	decoded, err := DecodeTaskContext(payload)
	require.NoError(t, err)
	assert.Equal(t, ctx, decoded)
}

func TestDecodeTaskContextInvalid(t *testing.T) {
	_, err := DecodeTaskContext("{broken")
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPostprocessActionValidate(t *testing.T) {
	tests := []struct {
		name    string
		action  PostprocessAction
		wantErr bool
	}{
		{name: "move with target", action: PostprocessAction{Kind: PostprocessMove, TargetFid: "99"}},
		{name: "move without target", action: PostprocessAction{Kind: PostprocessMove}, wantErr: true},
		{name: "remove", action: PostprocessAction{Kind: PostprocessRemove}},
		{name: "unknown kind", action: PostprocessAction{Kind: "archive"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
