package synclist

import "errors"

// Select returns the first item for which match reports true. If no item
// matches, notFound is returned. The pass restarts from the beginning
// whenever the list is modified during the scan.
func Select[T comparable](l *List[T], match func(T) (bool, error), notFound error) (T, error) {
	for {
		item, err := selectOnce(l, match, notFound)
		if errors.Is(err, ErrModified) {
			continue
		}
		return item, err
	}
}

func selectOnce[T comparable](l *List[T], match func(T) (bool, error), notFound error) (T, error) {
	var zero T

	id := l.StartIterating()
	defer l.StopIterating(id)

	for {
		item, ok, err := l.GetNext(id)
		if err != nil {
			return zero, err
		}
		if !ok {
			return zero, notFound
		}

		matched, err := match(item)
		if err != nil {
			return zero, err
		}
		if matched {
			return item, nil
		}
	}
}

// ProcessAll applies action to every item. The whole pass is repeated if the
// list is modified during the scan, so action may see an item more than
// once and must tolerate that.
func ProcessAll[T comparable](l *List[T], action func(T) error) error {
	for {
		err := processOnce(l, action)
		if errors.Is(err, ErrModified) {
			continue
		}
		return err
	}
}

func processOnce[T comparable](l *List[T], action func(T) error) error {
	id := l.StartIterating()
	defer l.StopIterating(id)

	for {
		item, ok, err := l.GetNext(id)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := action(item); err != nil {
			return err
		}
	}
}
