package boxtrain

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultBackgroundLabel is the reserved reporting label used when no
// custom one is configured
const DefaultBackgroundLabel = "background"

// ClassMapping is an ordered bijection between the integer class ids
// 0..K-1 a model is trained with and their human readable names, plus one
// reserved background label used for reporting.  It is constructed once at
// startup and immutable afterwards.
type ClassMapping struct {
	names      []string
	ids        map[string]int32
	background string
}

// NewClassMapping builds a mapping from an ordered list of class names.
// The id of a name is its position in the list.
func NewClassMapping(names []string) (*ClassMapping, error) {

	if len(names) == 0 {
		return nil, fmt.Errorf("class list is empty: %w", ErrConfig)
	}

	c := &ClassMapping{
		names:      append([]string(nil), names...),
		ids:        make(map[string]int32, len(names)),
		background: DefaultBackgroundLabel,
	}

	for i, name := range c.names {

		if name == "" {
			return nil, fmt.Errorf("class %d has an empty name: %w", i, ErrConfig)
		}

		if _, exists := c.ids[name]; exists {
			return nil, fmt.Errorf("duplicate class name %q: %w", name, ErrConfig)
		}

		c.ids[name] = int32(i)
	}

	return c, nil
}

// LoadClassFile reads the class names a model was trained with from the
// given text file and builds the mapping.  The file contains one label per
// line, in id order.
func LoadClassFile(file string) (*ClassMapping, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	var names []string

	// read and trim each line, skipping blanks
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		names = append(names, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return NewClassMapping(names)
}

// Len returns the number of real classes K.  The background label is not
// counted.
func (c *ClassMapping) Len() int {
	return len(c.names)
}

// Name returns the display name for a class id.  The padding sentinel
// reports the background label; ids outside the mapping report a numbered
// placeholder so rendering paths never panic on foreign ids.
func (c *ClassMapping) Name(id int32) string {

	if id == PadClassID {
		return c.background
	}

	if id < 0 || int(id) >= len(c.names) {
		return fmt.Sprintf("class %d", id)
	}

	return c.names[id]
}

// ID returns the class id for a name and whether the name is mapped
func (c *ClassMapping) ID(name string) (int32, bool) {
	id, ok := c.ids[name]
	return id, ok
}

// Names returns a copy of the ordered class name list
func (c *ClassMapping) Names() []string {
	return append([]string(nil), c.names...)
}

// Background returns the reserved reporting label
func (c *ClassMapping) Background() string {
	return c.background
}
