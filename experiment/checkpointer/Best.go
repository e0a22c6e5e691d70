package checkpointer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BestModel is the base name of the best model slot
const BestModel = "best_model"

// BestInfo describes the model stored in the best model slot
type BestInfo struct {
	Step       int     `json:"step"`
	MeanReward float64 `json:"mean_reward"`
}

// Best is the single, mutable best model slot of a run. The model is
// stored in best_model.gob and described by the best_model.json
// sidecar. The pair is replaced together by Save.
type Best struct {
	dir string
}

// NewBest returns the best model slot in dir, creating dir if needed
func NewBest(dir string) (*Best, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("newBest: %w", err)
	}
	return &Best{dir: dir}, nil
}

// ModelPath returns the path of the best model
func (b *Best) ModelPath() string {
	return filepath.Join(b.dir, BestModel+Extension)
}

// InfoPath returns the path of the best model sidecar
func (b *Best) InfoPath() string {
	return filepath.Join(b.dir, BestModel+".json")
}

// Save replaces the best model with s, which reached a mean evaluation
// reward of mean at step. Both files are written in full before either
// is replaced. The sidecar is replaced first and restored if the model
// cannot be replaced, so that a failed Save leaves the previous model
// and its description in the slot.
func (b *Best) Save(s Serializable, step int, mean float64) error {
	model, err := stage(b.ModelPath(), s.Save)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer os.Remove(model)

	info := BestInfo{Step: step, MeanReward: mean}
	sidecar, err := stage(b.InfoPath(), func(w io.Writer) error {
		return encodeInfo(w, info)
	})
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer os.Remove(sidecar)

	prev, err := os.ReadFile(b.InfoPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("save: %w", err)
	}
	hadPrev := err == nil

	if err := os.Rename(sidecar, b.InfoPath()); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err := os.Rename(model, b.ModelPath()); err != nil {
		if rbErr := b.restoreInfo(prev, hadPrev); rbErr != nil {
			return fmt.Errorf("save: %w (restoring sidecar: %v)", err, rbErr)
		}
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// restoreInfo puts back the sidecar contents prev, or removes the
// sidecar if there was none
func (b *Best) restoreInfo(prev []byte, hadPrev bool) error {
	if !hadPrev {
		return os.Remove(b.InfoPath())
	}
	return writeAtomic(b.InfoPath(), func(w io.Writer) error {
		_, err := w.Write(prev)
		return err
	})
}

func encodeInfo(w io.Writer, info BestInfo) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

// Load returns the description of the current best model. ErrNotFound
// is returned if no best model has been saved.
func (b *Best) Load() (BestInfo, error) {
	data, err := os.ReadFile(b.InfoPath())
	if errors.Is(err, os.ErrNotExist) {
		return BestInfo{}, fmt.Errorf("load: %w: %v", ErrNotFound,
			b.InfoPath())
	} else if err != nil {
		return BestInfo{}, fmt.Errorf("load: %w", err)
	}

	var info BestInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return BestInfo{}, fmt.Errorf("load: %w", err)
	}
	return info, nil
}
