// Package supplier implements the overlay's local supplier table.
//
// Example:
//
//	table, err := supplier.New(time.Hour, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	table.Insert(fingerprint, rec)
//	if got, ok := table.GetIfFresh(fingerprint); ok {
//	    fmt.Println(got.Name)
//	}
package supplier
