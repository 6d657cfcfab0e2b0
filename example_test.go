package omnifs_test

import (
	"context"
	"fmt"
	"log"

	"github.com/omnifs/omnifs"
	_ "github.com/omnifs/omnifs/backend/memory"
)

// Register two in-memory backends, write through the default, and copy
// the file across to the other backend.
func Example() {
	ctx := context.Background()

	reg := omnifs.NewRegistry()
	defer func() { _ = reg.Close() }()

	for _, name := range []string{"a", "b"} {
		err := reg.Register(ctx, omnifs.Descriptor{
			Name: name,
			URL:  "memory://" + name,
		})
		if err != nil {
			log.Fatal(err)
		}
	}

	disp := omnifs.NewDispatcher(reg)

	// Backend "a" registered first, so it is the default.
	if err := disp.Write(ctx, "notes/hello.txt", []byte("hello"), ""); err != nil {
		log.Fatal(err)
	}

	if err := disp.Copy(ctx, "notes/hello.txt", "inbox/hello.txt", "a", "b"); err != nil {
		log.Fatal(err)
	}

	data, err := disp.Read(ctx, "inbox/hello.txt", "b")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("default=%s content=%s\n", reg.DefaultName(), data)
	// Output: default=a content=hello
}
