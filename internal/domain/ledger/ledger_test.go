package ledger_test

import (
	"testing"

	"github.com/okian/circle/internal/domain/ledger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRecord(t *testing.T) {
	Convey("Given an empty history", t, func() {
		var h ledger.History

		Convey("When scores 10 through 60 are recorded in order", func() {
			for _, s := range []int{10, 20, 30, 40, 50, 60} {
				h = ledger.Record(h, s)
			}

			Convey("Then the oldest is evicted and the newest leads", func() {
				So(h, ShouldResemble, ledger.History{60, 50, 40, 30, 20})
			})
		})

		Convey("When many scores are recorded", func() {
			for i := 0; i < 50; i++ {
				h = ledger.Record(h, i%101)

				So(len(h), ShouldBeLessThanOrEqualTo, ledger.MaxEntries)
				latest, ok := h.Latest()
				So(ok, ShouldBeTrue)
				So(latest, ShouldEqual, i%101)
			}
		})

		Convey("When a single score is recorded", func() {
			h = ledger.Record(h, 0)

			Convey("Then the history holds just that score", func() {
				So(h, ShouldResemble, ledger.History{0})
			})
		})
	})

	Convey("Given a full history", t, func() {
		h := ledger.History{5, 4, 3, 2, 1}
		before := append(ledger.History(nil), h...)

		Convey("When a score is recorded", func() {
			next := ledger.Record(h, 6)

			Convey("Then the original is not mutated", func() {
				So(h, ShouldResemble, before)
				So(next, ShouldResemble, ledger.History{6, 5, 4, 3, 2})
			})
		})
	})

	Convey("Given an empty history", t, func() {
		Convey("Then Latest reports nothing", func() {
			_, ok := ledger.History{}.Latest()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestRender(t *testing.T) {
	Convey("Given a history", t, func() {
		h := ledger.History{60, 50, 40}

		Convey("Then scores are joined with the separator", func() {
			So(ledger.Render(h, ", "), ShouldEqual, "60, 50, 40")
			So(ledger.Render(h, "%<br>"), ShouldEqual, "60%<br>50%<br>40")
		})

		Convey("Then an empty history renders as an empty string", func() {
			So(ledger.Render(nil, ", "), ShouldEqual, "")
		})
	})
}

func TestEncodeDecode(t *testing.T) {
	Convey("Given the session serialization", t, func() {
		Convey("When a history is encoded", func() {
			b, err := ledger.Encode(ledger.History{60, 50})

			Convey("Then it is a JSON array of ints", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, "[60,50]")
				So(ledger.Decode(b), ShouldResemble, ledger.History{60, 50})
			})
		})

		Convey("When a nil history is encoded", func() {
			b, err := ledger.Encode(nil)

			Convey("Then it is an empty array", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, "[]")
			})
		})

		Convey("When stored data is absent or corrupt", func() {
			Convey("Then it decodes to an empty history", func() {
				for _, raw := range []string{"", "null", "{", `{"a":1}`, `["x"]`, `[1.5]`, `[101]`, `[-1,2]`, "garbage"} {
					h := ledger.Decode([]byte(raw))
					So(h, ShouldNotBeNil)
					So(len(h), ShouldEqual, 0)
				}
			})
		})

		Convey("When stored data is longer than the bound", func() {
			h := ledger.Decode([]byte("[7,6,5,4,3,2,1]"))

			Convey("Then only the most recent entries are kept", func() {
				So(h, ShouldResemble, ledger.History{7, 6, 5, 4, 3})
			})
		})
	})
}
